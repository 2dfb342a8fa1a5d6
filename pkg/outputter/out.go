// Package outputter renders command results in the format picked with --output.
package outputter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"sigs.k8s.io/yaml"
)

// Outputter writes f to w. msg and field name the result for formats which annotate it.
type Outputter func(ctx context.Context, w io.Writer, msg, field string, f any) error

// Names lists the accepted formats, for flag help.
var Names = []string{"json", "min-json", "yaml", "text", "log"}

// JSON encodes the data as indented JSON.
func JSON(ctx context.Context, w io.Writer, msg, field string, f any) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(f)
}

// MinJSON encodes the data as minimized JSON.
func MinJSON(ctx context.Context, w io.Writer, msg, field string, f any) error {
	return json.NewEncoder(w).Encode(f)
}

// Log emits the data as a structured log; w is unused.
func Log(ctx context.Context, w io.Writer, msg, field string, f any) error {
	log.Ctx(ctx).Info().Any(field, f).Msg(msg)
	return nil
}

// Text renders the data as an indented, human readable listing.
func Text(ctx context.Context, w io.Writer, msg, field string, f any) error {
	fmt.Fprintf(w, "%s:", msg)
	v := reflect.ValueOf(f)
	if (v.Kind() == reflect.Struct && v.NumField() == 0) ||
		(v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Struct && v.Elem().NumField() == 0) {
		fmt.Fprintln(w, " success")
		fmt.Fprintln(w, "")
		return nil
	}
	fmt.Fprintln(w, "")
	if v.Kind() == reflect.Slice {
		for j := 0; j < v.Len(); j++ {
			if err := text(w, v.Index(j), "- ", "  "); err != nil {
				return err
			}
		}
	} else if err := text(w, v, "  ", "  "); err != nil {
		return err
	}
	fmt.Fprintln(w, "")
	return nil
}

func text(w io.Writer, v reflect.Value, firstIndent, indent string) error {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		return text(w, v.Elem(), firstIndent, indent)
	}
	if v.Kind() != reflect.Struct {
		fmt.Fprintf(w, "%s%v\n", firstIndent, v.Interface())
		return nil
	}
	t := v.Type()
	first := true
	for i := 0; i < v.NumField(); i++ {
		fieldInfo := t.Field(i)
		if !fieldInfo.IsExported() {
			continue
		}
		lineIndent := indent
		if first {
			lineIndent = firstIndent
			first = false
		}
		fT := fieldInfo.Type
		fieldName := spaceDelimited(fieldInfo.Name)
		f := v.Field(i)
		if fT.Kind() == reflect.Pointer {
			if f.IsNil() {
				continue
			}
			f = f.Elem()
			fT = fT.Elem()
		}
		switch fT.Kind() {
		case reflect.Struct:
			fmt.Fprintf(w, "%s%s:\n", lineIndent, fieldName)
			if err := text(w, f, "  "+indent, "  "+indent); err != nil {
				return err
			}
		case reflect.Slice:
			if f.Len() == 0 {
				fmt.Fprintf(w, "%s%s: NULL\n", lineIndent, fieldName)
			} else if el := fT.Elem(); el.Kind() == reflect.Struct ||
				(el.Kind() == reflect.Pointer && el.Elem().Kind() == reflect.Struct) {
				fmt.Fprintf(w, "%s%s:\n", lineIndent, fieldName)
				for j := 0; j < f.Len(); j++ {
					if err := text(w, f.Index(j), indent+"- ", indent+"  "); err != nil {
						return err
					}
				}
			} else {
				b, err := json.Marshal(f.Interface())
				if err != nil {
					return fmt.Errorf("printing array: %w", err)
				}
				fmt.Fprintf(w, "%s%s: %s\n", lineIndent, fieldName, string(b))
			}
		case reflect.Float32, reflect.Float64:
			fmt.Fprintf(w, "%s%s: %f\n", lineIndent, fieldName, f.Interface())
		default:
			fmt.Fprintf(w, "%s%s: %v\n", lineIndent, fieldName, f.Interface())
		}
	}
	return nil
}

// YAML encodes the data as yaml.
func YAML(ctx context.Context, w io.Writer, msg, field string, f any) error {
	jsonBytes, err := json.Marshal(f)
	if err != nil {
		return err
	}
	yamlBytes, err := yaml.JSONToYAML(jsonBytes)
	if err != nil {
		return err
	}
	_, err = w.Write(yamlBytes)
	return err
}

// ByName selects an outputter by name or returns an error.
func ByName(name string) (Outputter, error) {
	switch name {
	case "json":
		return JSON, nil
	case "min-json":
		return MinJSON, nil
	case "yaml":
		return YAML, nil
	case "text":
		return Text, nil
	case "log":
		return Log, nil
	default:
		return nil, fmt.Errorf("unknown output formatter: %q", name)
	}
}

func spaceDelimited(s string) string {
	var out []string
	var last rune
	var wordStart int
	for i, r := range s {
		isUpper := unicode.IsUpper(r)
		var nextIsLower, lastIsUpper bool
		if asRunes := []rune(s[i:]); len(asRunes) >= 2 && unicode.IsLower(asRunes[1]) {
			nextIsLower = true
		}
		if last != rune(0) && unicode.IsUpper(last) {
			lastIsUpper = true
		}

		if isUpper && (nextIsLower || !lastIsUpper) {
			word := strings.Trim(s[wordStart:i], " _-")
			if word != "" {
				out = append(out, word)
			}
			wordStart = i
		}
		last = r
	}
	word := strings.Trim(s[wordStart:], " _-")
	if word != "" {
		out = append(out, word)
	}
	return strings.Join(out, " ")
}
