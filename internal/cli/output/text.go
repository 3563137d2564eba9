package output

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
)

// TextFormatter prints one aligned "key value" line per leaf value.
type TextFormatter struct{}

// Format flattens data and prints it sorted by key. Strings are printed
// as-is; anything that is not an object prints on a single line.
func (f *TextFormatter) Format(w io.Writer, data any) error {
	if s, ok := data.(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	m, err := toMap(data)
	if err != nil {
		_, err = fmt.Fprintln(w, data)
		return err
	}

	flat := make(map[string]string)
	flatten("", m, flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, flat[k])
	}
	return tw.Flush()
}

// flatten writes leaves of v into out under dotted keys. Slice elements use
// their index as the key segment.
func flatten(prefix string, v any, out map[string]string) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}

	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 && prefix != "" {
			out[prefix] = "{}"
		}
		for k, child := range val {
			flatten(join(k), child, out)
		}
	case []any:
		if len(val) == 0 {
			out[prefix] = "[]"
		}
		for i, child := range val {
			flatten(join(strconv.Itoa(i)), child, out)
		}
	case nil:
		out[prefix] = ""
	case string:
		out[prefix] = val
	default:
		out[prefix] = fmt.Sprint(val)
	}
}
