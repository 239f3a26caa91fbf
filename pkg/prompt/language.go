package prompt

import (
	"path/filepath"
	"strings"
)

var languageByExt = map[string]string{
	".bash":  "shellscript",
	".c":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cs":    "csharp",
	".css":   "css",
	".dart":  "dart",
	".ex":    "elixir",
	".exs":   "elixir",
	".go":    "go",
	".h":     "c",
	".hpp":   "cpp",
	".html":  "html",
	".java":  "java",
	".js":    "javascript",
	".json":  "json",
	".jsx":   "javascriptreact",
	".kt":    "kotlin",
	".lua":   "lua",
	".md":    "markdown",
	".php":   "php",
	".py":    "python",
	".r":     "r",
	".rb":    "ruby",
	".rs":    "rust",
	".scala": "scala",
	".sh":    "shellscript",
	".sql":   "sql",
	".swift": "swift",
	".toml":  "toml",
	".ts":    "typescript",
	".tsx":   "typescriptreact",
	".yaml":  "yaml",
	".yml":   "yaml",
	".zig":   "zig",
}

var languageByName = map[string]string{
	"dockerfile":  "dockerfile",
	"makefile":    "makefile",
	"gnumakefile": "makefile",
}

// LanguageFromPath derives an editor-style language id from a file name,
// falling back to "plaintext".
func LanguageFromPath(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if lang, ok := languageByName[base]; ok {
		return lang
	}

	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}

	return "plaintext"
}
