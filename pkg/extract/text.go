package extract

import (
	"os"
	"strings"
)

func extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", failed("read file: %v", err)
	}
	text := strings.ReplaceAll(string(data), "\x00", " ")
	return strings.ToValidUTF8(text, "\uFFFD"), nil
}
