// internal/syncer/language.go
package syncer

import (
	"path"
	"strings"
)

var languageByExtension = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".mjs":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".java":  "Java",
	".kt":    "Kotlin",
	".kts":   "Kotlin",
	".scala": "Scala",
	".rb":    "Ruby",
	".php":   "PHP",
	".c":     "C",
	".h":     "C",
	".cc":    "C++",
	".cpp":   "C++",
	".cxx":   "C++",
	".hpp":   "C++",
	".cs":    "C#",
	".rs":    "Rust",
	".swift": "Swift",
	".m":     "Objective-C",
	".dart":  "Dart",
	".lua":   "Lua",
	".r":     "R",
	".sh":    "Shell",
	".bash":  "Shell",
	".ps1":   "PowerShell",
	".sql":   "SQL",
	".html":  "HTML",
	".htm":   "HTML",
	".css":   "CSS",
	".scss":  "SCSS",
	".vue":   "Vue",
	".json":  "JSON",
	".yaml":  "YAML",
	".yml":   "YAML",
	".toml":  "TOML",
	".xml":   "XML",
	".md":    "Markdown",
	".ipynb": "Jupyter Notebook",
	".tex":   "TeX",
}

var languageByFilename = map[string]string{
	"dockerfile": "Dockerfile",
	"makefile":   "Makefile",
}

// LanguageForPath guesses a file's language from its name; "" when unknown.
func LanguageForPath(p string) string {
	base := strings.ToLower(path.Base(p))
	if lang, ok := languageByFilename[base]; ok {
		return lang
	}
	return languageByExtension[path.Ext(base)]
}
