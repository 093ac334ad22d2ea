package analysis

import (
	"fmt"
	"path/filepath"
	"strings"
)

var extToContentType = map[string]ContentType{
	".pdf":  ContentTypePDF,
	".docx": ContentTypeDOCX,
}

// SupportedExtensions lists the file extensions Analyze accepts.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx"}
}

// ResolveContentType derives the submission content type from a file name.
func ResolveContentType(name string) (ContentType, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if ext == "" || ext == "." {
		return "", &Error{
			Kind: KindUnsupportedDocumentType,
			Step: StepResolve,
			Err:  fmt.Errorf("file name %q has no extension", name),
		}
	}

	ct, ok := extToContentType[ext]
	if !ok {
		return "", &Error{
			Kind: KindUnsupportedDocumentType,
			Step: StepResolve,
			Err:  fmt.Errorf("unsupported file type: %s", ext),
		}
	}
	return ct, nil
}
