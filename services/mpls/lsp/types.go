// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import "encoding/json"

// =============================================================================
// BASIC TYPES
// =============================================================================

// Position is a zero-based line/character location; Character counts
// UTF-16 code units.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a span between two positions in a text document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextDocumentIdentifier identifies a text document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// TextDocumentItem is a text document transferred on didOpen.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int32  `json:"version"`
	Text       string `json:"text"`
}

// VersionedTextDocumentIdentifier identifies a specific document version.
type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int32  `json:"version"`
}

// =============================================================================
// DOCUMENT SYNCHRONIZATION
// =============================================================================

// DidOpenTextDocumentParams is sent when a document is opened.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams is sent when a document changes.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// TextDocumentContentChangeEvent describes a change. Range is nil for a
// full-text replacement, which is the only form this client sends.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// DidCloseTextDocumentParams is sent when a document is closed.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// =============================================================================
// CODE LENS
// =============================================================================

// CodeLensParams requests the code lenses of a document.
type CodeLensParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// Command is a server command bound to a title.
type Command struct {
	Title     string            `json:"title"`
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// CodeLens is a command shown in line with source text. Command is nil
// until the lens is resolved when the server defers it.
type CodeLens struct {
	Range   Range           `json:"range"`
	Command *Command        `json:"command,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ExecuteCommandParams asks the server to run a command.
type ExecuteCommandParams struct {
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// =============================================================================
// INITIALIZE TYPES
// =============================================================================

// InitializeParams contains initialization parameters.
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	ClientInfo            *ClientInfo        `json:"clientInfo,omitempty"`
	RootURI               string             `json:"rootUri"`
	RootPath              string             `json:"rootPath,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions interface{}        `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
}

// ClientInfo identifies this client to the server.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// WorkspaceFolder represents a workspace folder.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// ClientCapabilities describes what the client supports.
type ClientCapabilities struct {
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
	Workspace    WorkspaceClientCapabilities    `json:"workspace"`
}

// TextDocumentClientCapabilities describes text document capabilities.
type TextDocumentClientCapabilities struct {
	Synchronization *TextDocumentSyncClientCapabilities `json:"synchronization,omitempty"`
	CodeLens        *CodeLensClientCapabilities         `json:"codeLens,omitempty"`
}

// TextDocumentSyncClientCapabilities describes sync capabilities.
type TextDocumentSyncClientCapabilities struct {
	DidSave bool `json:"didSave,omitempty"`
}

// CodeLensClientCapabilities describes code lens support.
type CodeLensClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
}

// WorkspaceClientCapabilities describes workspace capabilities.
type WorkspaceClientCapabilities struct {
	Configuration    bool                                 `json:"configuration,omitempty"`
	WorkspaceFolders bool                                 `json:"workspaceFolders,omitempty"`
	ExecuteCommand   *ExecuteCommandClientCapabilities    `json:"executeCommand,omitempty"`
	CodeLens         *CodeLensWorkspaceClientCapabilities `json:"codeLens,omitempty"`
}

// ExecuteCommandClientCapabilities describes workspace/executeCommand support.
type ExecuteCommandClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
}

// CodeLensWorkspaceClientCapabilities describes workspace/codeLens/refresh support.
type CodeLensWorkspaceClientCapabilities struct {
	RefreshSupport bool `json:"refreshSupport,omitempty"`
}

// InitializeResult contains the server's response to initialize.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerInfo contains information about the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// CodeLensOptions is the server's code lens capability.
type CodeLensOptions struct {
	// ResolveProvider indicates codeLens/resolve must be used to obtain
	// the command of a lens.
	ResolveProvider bool `json:"resolveProvider,omitempty"`
}

// ExecuteCommandOptions lists the commands the server executes.
type ExecuteCommandOptions struct {
	Commands []string `json:"commands,omitempty"`
}

// ServerCapabilities describes what the server supports.
type ServerCapabilities struct {
	// TextDocumentSync is either a TextDocumentSyncKind number or an
	// options object.
	TextDocumentSync interface{} `json:"textDocumentSync,omitempty"`

	// CodeLensProvider is nil when the server offers no code lenses.
	CodeLensProvider *CodeLensOptions `json:"codeLensProvider,omitempty"`

	ExecuteCommandProvider *ExecuteCommandOptions `json:"executeCommandProvider,omitempty"`
}

// HasCodeLensProvider returns true if textDocument/codeLens is supported.
func (c *ServerCapabilities) HasCodeLensProvider() bool {
	return c != nil && c.CodeLensProvider != nil
}

// CodeLensResolveProvider returns true if lenses must be resolved before
// their command is executed.
func (c *ServerCapabilities) CodeLensResolveProvider() bool {
	return c.HasCodeLensProvider() && c.CodeLensProvider.ResolveProvider
}

// ExecutesCommand returns true if the server advertises command.
func (c *ServerCapabilities) ExecutesCommand(command string) bool {
	if c == nil || c.ExecuteCommandProvider == nil {
		return false
	}
	for _, cmd := range c.ExecuteCommandProvider.Commands {
		if cmd == command {
			return true
		}
	}
	return false
}
