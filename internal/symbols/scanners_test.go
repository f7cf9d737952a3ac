package symbols

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devgraph/devgraph-go/internal/models"
)

func scanSymbols(t *testing.T, lang, src string) []models.Symbol {
	t.Helper()
	scanner := ForLanguage(lang)
	require.NotNil(t, scanner)
	return scanner.Symbols("src/app."+lang, strings.Split(src, "\n"))
}

func scanImports(t *testing.T, lang, src string) []Import {
	t.Helper()
	scanner := ForLanguage(lang)
	require.NotNil(t, scanner)
	return scanner.Imports(strings.Split(src, "\n"))
}

func TestForLanguageUnknown(t *testing.T) {
	assert.Nil(t, ForLanguage("markdown"))
	assert.Nil(t, ForLanguage(""))
	assert.NotNil(t, ForLanguage("TypeScript"))
}

func TestPythonSymbols(t *testing.T) {
	src := `import os

def top_level(a, b):
    def nested():
        pass
    return a

class Widget:
    def __init__(self):
        self.x = 1

    async def refresh(self):
        pass

CONSTANT = 1

def after_class():
    pass
`
	symbols := scanSymbols(t, "python", src)
	require.Len(t, symbols, 5)

	assert.Equal(t, "top_level", symbols[0].Name)
	assert.Equal(t, models.SymbolFunction, symbols[0].Type)
	assert.Equal(t, 3, symbols[0].LineNumber)

	assert.Equal(t, "Widget", symbols[1].Name)
	assert.Equal(t, models.SymbolClass, symbols[1].Type)
	assert.Equal(t, "class Widget", symbols[1].Signature)

	assert.Equal(t, "__init__", symbols[2].Name)
	assert.Equal(t, models.SymbolMethod, symbols[2].Type)
	assert.Equal(t, "refresh", symbols[3].Name)
	assert.Equal(t, models.SymbolMethod, symbols[3].Type)

	// CONSTANT at column zero closes the class scope.
	assert.Equal(t, "after_class", symbols[4].Name)
	assert.Equal(t, models.SymbolFunction, symbols[4].Type)
}

func TestPythonImports(t *testing.T) {
	src := `import os
import collections.abc
from pathlib import Path
from app.core import engine
mod = importlib.import_module("plugins.audio")
legacy = __import__('legacy_pkg')
`
	imports := scanImports(t, "python", src)
	require.Len(t, imports, 6)

	assert.Equal(t, Import{Target: "os"}, imports[0])
	assert.Equal(t, Import{Target: "collections.abc"}, imports[1])
	assert.Equal(t, Import{Target: "pathlib"}, imports[2])
	assert.Equal(t, Import{Target: "app.core"}, imports[3])
	assert.Equal(t, Import{Target: "plugins.audio", Dynamic: true}, imports[4])
	assert.Equal(t, Import{Target: "legacy_pkg", Dynamic: true}, imports[5])

	assert.Equal(t, 1.0, imports[0].Confidence())
	assert.Equal(t, 0.5, imports[4].Confidence())
}

func TestTypeScriptSymbols(t *testing.T) {
	src := `import { api } from './api';

export interface Session {
  id: string;
}

export default class Store {
  private cache: Map<string, Session>;

  get(id: string): Session {
    return this.cache.get(id);
  }

  async refresh(): Promise<void> {
  }
}

export const toKey = (s: Session) => s.id;

function helper(n: number) {
  if (n > 0) {
    return n;
  }
}
`
	symbols := scanSymbols(t, "typescript", src)
	require.Len(t, symbols, 6)

	assert.Equal(t, "Session", symbols[0].Name)
	assert.Equal(t, models.SymbolInterface, symbols[0].Type)
	assert.Equal(t, "Store", symbols[1].Name)
	assert.Equal(t, models.SymbolClass, symbols[1].Type)
	assert.Equal(t, "get", symbols[2].Name)
	assert.Equal(t, models.SymbolMethod, symbols[2].Type)
	assert.Equal(t, "refresh", symbols[3].Name)
	assert.Equal(t, models.SymbolMethod, symbols[3].Type)
	assert.Equal(t, "toKey", symbols[4].Name)
	assert.Equal(t, models.SymbolFunction, symbols[4].Type)
	assert.Equal(t, "helper", symbols[5].Name)
	assert.Equal(t, models.SymbolFunction, symbols[5].Type)
}

func TestJSImports(t *testing.T) {
	src := `import React from 'react';
import { render } from "@testing-library/react";
const fs = require('fs');
const plugin = await import('./plugins/' + name);
const lazy = await import('./heavy');
`
	imports := scanImports(t, "javascript", src)
	require.Len(t, imports, 4)

	assert.Equal(t, Import{Target: "react"}, imports[0])
	assert.Equal(t, Import{Target: "@testing-library/react"}, imports[1])
	assert.Equal(t, Import{Target: "fs"}, imports[2])
	assert.Equal(t, Import{Target: "./heavy", Dynamic: true}, imports[3])
}

func TestGoSymbols(t *testing.T) {
	src := `package engine

type Pool struct {
	size int
}

type Runner interface {
	Run() error
}

func NewPool(size int) *Pool {
	return &Pool{size: size}
}

func (p *Pool) Run() error {
	return nil
}
`
	symbols := scanSymbols(t, "go", src)
	require.Len(t, symbols, 4)

	assert.Equal(t, "Pool", symbols[0].Name)
	assert.Equal(t, models.SymbolClass, symbols[0].Type)
	assert.Equal(t, "Runner", symbols[1].Name)
	assert.Equal(t, models.SymbolInterface, symbols[1].Type)
	assert.Equal(t, "NewPool", symbols[2].Name)
	assert.Equal(t, models.SymbolFunction, symbols[2].Type)
	assert.Equal(t, "Run", symbols[3].Name)
	assert.Equal(t, models.SymbolMethod, symbols[3].Type)
	assert.Equal(t, "func (p *Pool) Run() error", symbols[3].Signature)
}

func TestGoImports(t *testing.T) {
	src := `package engine

import "fmt"

import (
	"context"
	"strings"

	neo4j "github.com/neo4j/neo4j-go-driver/v5/neo4j"
)
`
	imports := scanImports(t, "go", src)
	require.Len(t, imports, 4)
	assert.Equal(t, "fmt", imports[0].Target)
	assert.Equal(t, "context", imports[1].Target)
	assert.Equal(t, "strings", imports[2].Target)
	assert.Equal(t, "github.com/neo4j/neo4j-go-driver/v5/neo4j", imports[3].Target)
}
