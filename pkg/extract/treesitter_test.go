// Copyright 2026 CodeAtlas Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeatlas-dev/codeatlas/pkg/lang"
)

const sampleTS = `import { hash, compare as cmp } from "./crypto";
import express from "express";
import * as path from "path";

/** Validates a login attempt. */
export async function login(user: string, pass: string): Promise<boolean> {
	const stored = await loadHash(user);
	return cmp(pass, stored);
}

function loadHash(user: string): Promise<string> {
	return db.get(user);
}

export const normalize = (s: string) => s.trim().toLowerCase();

export interface Session {
	token: string;
	expires: number;
}

export enum Role {
	Admin,
	Viewer,
}

export type SessionMap = Map<string, Session>;

export abstract class BaseStore {
	protected cache: SessionMap;

	abstract load(key: string): Promise<Session>;

	async refresh(key: string): Promise<void> {
		await this.load(key);
	}
}
`

func newTestBackend(t *testing.T) *TreeSitterBackend {
	t.Helper()
	b, err := NewTreeSitterBackend(nil)
	require.NoError(t, err)
	return b
}

func findEntity(entities []CodeEntity, kind EntityKind, name string) *CodeEntity {
	for i := range entities {
		if entities[i].Kind == kind && entities[i].Name == name {
			return &entities[i]
		}
	}
	return nil
}

func TestExtract_TypeScriptEntities(t *testing.T) {
	b := newTestBackend(t)
	result, err := b.Extract(context.Background(), []byte(sampleTS), "src/auth/login.ts")
	require.NoError(t, err)
	require.Equal(t, lang.TypeScript, result.Language)

	mod := findEntity(result.Entities, KindModule, "login")
	require.NotNil(t, mod, "every file gets a module entity")
	require.Equal(t, 1, mod.StartLine)

	login := findEntity(result.Entities, KindFunction, "login")
	require.NotNil(t, login)
	require.True(t, login.Exported)
	require.True(t, login.IsAsync)
	require.Contains(t, login.Doc, "Validates a login attempt")
	require.LessOrEqual(t, login.StartLine, login.EndLine)

	loadHash := findEntity(result.Entities, KindFunction, "loadHash")
	require.NotNil(t, loadHash)
	require.False(t, loadHash.Exported)
	require.False(t, loadHash.IsAsync)

	normalize := findEntity(result.Entities, KindFunction, "normalize")
	require.NotNil(t, normalize, "arrow function bound to const")
	require.True(t, normalize.Exported)

	require.NotNil(t, findEntity(result.Entities, KindInterface, "Session"))
	require.NotNil(t, findEntity(result.Entities, KindEnum, "Role"))
	require.NotNil(t, findEntity(result.Entities, KindTypeAlias, "SessionMap"))

	base := findEntity(result.Entities, KindClass, "BaseStore")
	require.NotNil(t, base)
	require.True(t, base.IsAbstract)

	refresh := findEntity(result.Entities, KindMethod, "refresh")
	require.NotNil(t, refresh)
	require.Equal(t, "BaseStore", refresh.Parent)
	require.True(t, refresh.IsAsync)

	load := findEntity(result.Entities, KindMethod, "load")
	require.NotNil(t, load)
	require.True(t, load.IsAbstract)
}

func TestExtract_Imports(t *testing.T) {
	b := newTestBackend(t)
	result, err := b.Extract(context.Background(), []byte(sampleTS), "src/auth/login.ts")
	require.NoError(t, err)
	require.Len(t, result.Imports, 3)

	crypto := result.Imports[0]
	require.Equal(t, "./crypto", crypto.Module)
	require.Len(t, crypto.Names, 2)
	require.Equal(t, "hash", crypto.Names[0].Name)
	require.Equal(t, "compare", crypto.Names[1].Name)
	require.Equal(t, "cmp", crypto.Names[1].Alias)

	express := result.Imports[1]
	require.Equal(t, "express", express.Module)
	require.True(t, express.Names[0].Default)

	pathImp := result.Imports[2]
	require.Equal(t, "path", pathImp.Module)
	require.True(t, pathImp.Names[0].Namespace)
}

func TestExtract_Exports(t *testing.T) {
	b := newTestBackend(t)
	result, err := b.Extract(context.Background(), []byte(sampleTS), "src/auth/login.ts")
	require.NoError(t, err)

	names := make(map[string]string)
	for _, e := range result.Exports {
		names[e.Name] = e.Kind
	}
	require.Equal(t, "function", names["login"])
	require.Equal(t, "value", names["normalize"])
	require.Equal(t, "interface", names["Session"])
	require.Equal(t, "enum", names["Role"])
	require.Equal(t, "type_alias", names["SessionMap"])
	require.Equal(t, "class", names["BaseStore"])
	require.NotContains(t, names, "loadHash")
}

func TestExtract_CallsWithCallerAttribution(t *testing.T) {
	b := newTestBackend(t)
	result, err := b.Extract(context.Background(), []byte(sampleTS), "src/auth/login.ts")
	require.NoError(t, err)

	byCallee := make(map[string]CallRecord)
	for _, c := range result.Calls {
		byCallee[c.Callee] = c
	}

	loadCall := byCallee["loadHash"]
	require.Equal(t, "login", loadCall.Caller)
	require.True(t, loadCall.Awaited)

	cmpCall := byCallee["cmp"]
	require.Equal(t, "login", cmpCall.Caller)
	require.False(t, cmpCall.Awaited)

	getCall := byCallee["get"]
	require.Equal(t, "loadHash", getCall.Caller, "member call attributed to enclosing function")

	selfLoad := byCallee["load"]
	require.Equal(t, "refresh", selfLoad.Caller)
	require.True(t, selfLoad.Awaited)
}

// TestExtract_Deterministic verifies the replace-on-reparse invariant:
// identical input yields an identical result, order included.
func TestExtract_Deterministic(t *testing.T) {
	b := newTestBackend(t)
	first, err := b.Extract(context.Background(), []byte(sampleTS), "src/auth/login.ts")
	require.NoError(t, err)
	second, err := b.Extract(context.Background(), []byte(sampleTS), "src/auth/login.ts")
	require.NoError(t, err)

	first.ParseTime, second.ParseTime = 0, 0
	require.Equal(t, first, second)
}

func TestExtract_JSXAndJavaScript(t *testing.T) {
	b := newTestBackend(t)

	jsx := `export function Button({ label }) {
	return <button onClick={() => handleClick(label)}>{label}</button>;
}
`
	result, err := b.Extract(context.Background(), []byte(jsx), "components/Button.jsx")
	require.NoError(t, err)
	require.Equal(t, lang.JavaScript, result.Language)
	btn := findEntity(result.Entities, KindFunction, "Button")
	require.NotNil(t, btn)
	require.True(t, btn.Exported)

	tsxSrc := `export const App = () => <div>hello</div>;`
	result, err = b.Extract(context.Background(), []byte(tsxSrc), "src/App.tsx")
	require.NoError(t, err)
	require.NotNil(t, findEntity(result.Entities, KindFunction, "App"))
}

func TestExtract_SyntaxErrorsAreTolerated(t *testing.T) {
	b := newTestBackend(t)
	broken := `export function ok() { return 1; }
function broken( {{{
`
	result, err := b.Extract(context.Background(), []byte(broken), "src/broken.ts")
	require.NoError(t, err, "tree-sitter is error-tolerant; a broken region must not abort the file")
	require.NotNil(t, findEntity(result.Entities, KindFunction, "ok"))
	require.NotEmpty(t, result.Errors)
}
