package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalString(v any) (string, error) {
	return defaultConfig.MarshalToString(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// NewLineEncoder writes one JSON document per line, as the listener output does.
func NewLineEncoder(w io.Writer) interface{ Encode(v any) error } {
	return defaultConfig.NewEncoder(w)
}
