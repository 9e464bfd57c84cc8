// Package langmap classifies file paths into language namespaces. Namespaces
// bound move/evolution matching: a token leaving a JavaScript file does not
// explain a token arriving in a C++ file.
package langmap

import (
	"path"
	"strings"

	"github.com/src-d/enry/v2"
)

// DefaultNamespace is used when no language can be derived from the path.
const DefaultNamespace = "text"

// Classifier maps a file path to its language namespace. The upstream
// tokenizer is an external collaborator, so classification is content-free.
type Classifier func(filePath string) string

// ForPath classifies by file name and extension via enry's linguist data.
func ForPath(filePath string) string {
	base := path.Base(filePath)

	lang, ok := enry.GetLanguageByFilename(base)
	if !ok {
		lang, ok = enry.GetLanguageByExtension(base)
	}

	if !ok || lang == "" {
		return DefaultNamespace
	}

	return strings.ToLower(lang)
}
