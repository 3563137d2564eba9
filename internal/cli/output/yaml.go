package output

import (
	"io"

	"github.com/knadh/koanf/parsers/yaml"
)

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

// Format formats data as YAML. data must encode to an object.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	m, err := toMap(data)
	if err != nil {
		return err
	}
	out, err := yaml.Parser().Marshal(m)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
