package utils

import (
	"github.com/go-json-experiment/json"
)

// Remarshal copies input into output through its JSON form.
func Remarshal(input any, output any) error {
	b, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, output)
}
