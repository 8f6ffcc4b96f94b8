package utils

import (
	"path/filepath"
	"strings"
)

var languageByExt = map[string]string{
	"go":    "go",
	"js":    "javascript",
	"ts":    "typescript",
	"jsx":   "jsx",
	"tsx":   "tsx",
	"py":    "python",
	"pyi":   "python",
	"pyw":   "python",
	"java":  "java",
	"c":     "c",
	"h":     "c",
	"cpp":   "cpp",
	"cc":    "cpp",
	"cxx":   "cpp",
	"hpp":   "cpp",
	"cs":    "csharp",
	"php":   "php",
	"rb":    "ruby",
	"rs":    "rust",
	"swift": "swift",
	"kt":    "kotlin",
	"scala": "scala",
	"sh":    "bash",
	"bash":  "bash",
	"zsh":   "bash",
	"ps1":   "powershell",
	"sql":   "sql",
	"html":  "html",
	"css":   "css",
	"xml":   "xml",
	"json":  "json",
	"yaml":  "yaml",
	"yml":   "yaml",
	"toml":  "toml",
	"ini":   "ini",
	"cfg":   "ini",
	"md":    "markdown",
	"rst":   "rst",
	"txt":   "text",
}

// DetectLanguageFromFilePath returns the fence info string used for a file block.
// Unknown extensions yield "text".
func DetectLanguageFromFilePath(filePath string) string {
	base := strings.ToLower(filepath.Base(filePath))
	switch base {
	case "dockerfile":
		return "dockerfile"
	case "makefile", "gnumakefile":
		return "makefile"
	}

	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	if language, exists := languageByExt[ext]; exists {
		return language
	}

	return "text"
}
