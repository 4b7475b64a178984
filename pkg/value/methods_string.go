package value

import (
	"encoding/xml"
	"fmt"
	"html"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

func init() {
	t := table{
		"length":    {Read, stringLength},
		"is_empty":  {Read, stringIsEmpty},
		"contains":  {Read, stringContains},
		"contains_regex": {Read, regexPredicate(func(re *regexp.Regexp, s string) bool {
			return re.MatchString(s)
		})},
		"starts_with": {Read, stringStartsWith},
		"starts_with_regex": {Read, regexPredicate(func(re *regexp.Regexp, s string) bool {
			loc := re.FindStringIndex(s)
			return loc != nil && loc[0] == 0
		})},
		"ends_with": {Read, stringEndsWith},
		"ends_with_regex": {Read, regexPredicate(func(re *regexp.Regexp, s string) bool {
			loc := re.FindStringIndex(s)
			return loc != nil && loc[1] == len(s)
		})},
		"match":                  {Read, stringMatch(false)},
		"match_regex":            {Read, stringMatch(true)},
		"replace":                {Read, stringReplace(false, false)},
		"replace_all":            {Read, stringReplace(false, true)},
		"replace_regex":          {Read, stringReplaceRegex},
		"split":                  {Read, stringSplit},
		"slice":                  {Read, stringSlice},
		"trim":                   {Read, stringTrim(strings.TrimSpace)},
		"trim_left":              {Read, stringTrim(func(s string) string { return strings.TrimLeft(s, " \t\n\r") })},
		"trim_right":             {Read, stringTrim(func(s string) string { return strings.TrimRight(s, " \t\n\r") })},
		"to_lowercase":           {Read, stringCase(cases.Lower(language.Und))},
		"to_uppercase":           {Read, stringCase(cases.Upper(language.Und))},
		"capitalize":             {Read, stringCapitalize},
		"append":                 {Read, stringAppend},
		"is_email":               {Read, stringIsEmail},
		"from_json":              {Read, stringFromJSON},
		"to_json":                {Read, stringToJSON},
		"encode_uri":             {Read, stringEncodeURI},
		"decode_uri":             {Read, stringDecodeURI},
		"encode_uri_component":   {Read, stringEncodeURIComponent},
		"decode_uri_component":   {Read, stringDecodeURIComponent},
		"encode_html_entities":   {Read, stringEncodeHTMLEntities},
		"decode_html_entities":   {Read, stringDecodeHTMLEntities},
	}
	// Numeric methods: the string is parsed as a number first (spec §4.1).
	for name, m := range numericTable {
		t[name] = m
	}
	register(String, t)
}

func stringLength(recv *Value, args []Value) (Value, error) {
	if err := checkArity("length", args, 0); err != nil {
		return Value{}, err
	}
	return NewInt(int64(len([]rune(recv.s)))), nil
}

// stringIsEmpty implements the zero-argument contract decided in
// DESIGN.md Open Question #3: the original dispatch table required
// (and ignored) one argument; this reimplementation rejects extras.
func stringIsEmpty(recv *Value, args []Value) (Value, error) {
	if err := checkArity("is_empty", args, 0); err != nil {
		return Value{}, err
	}
	return NewBool(recv.s == ""), nil
}

func stringContains(recv *Value, args []Value) (Value, error) {
	if err := checkArity("contains", args, 1); err != nil {
		return Value{}, err
	}
	return NewBool(strings.Contains(recv.s, args[0].String())), nil
}

func stringStartsWith(recv *Value, args []Value) (Value, error) {
	if err := checkArity("starts_with", args, 1); err != nil {
		return Value{}, err
	}
	return NewBool(strings.HasPrefix(recv.s, args[0].String())), nil
}

func stringEndsWith(recv *Value, args []Value) (Value, error) {
	if err := checkArity("ends_with", args, 1); err != nil {
		return Value{}, err
	}
	return NewBool(strings.HasSuffix(recv.s, args[0].String())), nil
}

func regexPredicate(f func(re *regexp.Regexp, s string) bool) func(recv *Value, args []Value) (Value, error) {
	return func(recv *Value, args []Value) (Value, error) {
		if err := checkArity("regex", args, 1); err != nil {
			return Value{}, err
		}
		re, err := compileRegex(args[0].String())
		if err != nil {
			return Value{}, err
		}
		return NewBool(f(re, recv.s)), nil
	}
}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &OpError{Op: "regex", Message: "invalid regular expression: " + err.Error()}
	}
	return re, nil
}

func stringMatch(isRegex bool) func(recv *Value, args []Value) (Value, error) {
	return func(recv *Value, args []Value) (Value, error) {
		if err := checkArity("match", args, 1); err != nil {
			return Value{}, err
		}
		pattern := args[0].String()
		var matches []string
		if isRegex {
			re, err := compileRegex(pattern)
			if err != nil {
				return Value{}, err
			}
			matches = re.FindAllString(recv.s, -1)
		} else {
			if strings.Contains(recv.s, pattern) {
				matches = []string{pattern}
			}
		}
		items := make([]Value, len(matches))
		for i, m := range matches {
			items[i] = NewString(m)
		}
		return NewArray(items), nil
	}
}

func stringReplace(isRegex, all bool) func(recv *Value, args []Value) (Value, error) {
	return func(recv *Value, args []Value) (Value, error) {
		if err := checkArity("replace", args, 2); err != nil {
			return Value{}, err
		}
		from, to := args[0].String(), args[1].String()
		if all {
			return NewString(strings.ReplaceAll(recv.s, from, to)), nil
		}
		return NewString(strings.Replace(recv.s, from, to, 1)), nil
	}
}

func stringReplaceRegex(recv *Value, args []Value) (Value, error) {
	if err := checkArity("replace_regex", args, 2); err != nil {
		return Value{}, err
	}
	re, err := compileRegex(args[0].String())
	if err != nil {
		return Value{}, err
	}
	return NewString(re.ReplaceAllString(recv.s, args[1].String())), nil
}

func stringSplit(recv *Value, args []Value) (Value, error) {
	if err := checkArity("split", args, 1); err != nil {
		return Value{}, err
	}
	parts := strings.Split(recv.s, args[0].String())
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = NewString(p)
	}
	return NewArray(items), nil
}

func stringSlice(recv *Value, args []Value) (Value, error) {
	runes := []rune(recv.s)
	start, end, err := sliceBounds(len(runes), args, "slice")
	if err != nil {
		return Value{}, err
	}
	return NewString(string(runes[start:end])), nil
}

func stringTrim(f func(string) string) func(recv *Value, args []Value) (Value, error) {
	return func(recv *Value, args []Value) (Value, error) {
		if err := checkArity("trim", args, 0); err != nil {
			return Value{}, err
		}
		return NewString(f(recv.s)), nil
	}
}

func stringCase(c cases.Caser) func(recv *Value, args []Value) (Value, error) {
	return func(recv *Value, args []Value) (Value, error) {
		if err := checkArity("case", args, 0); err != nil {
			return Value{}, err
		}
		return NewString(c.String(recv.s)), nil
	}
}

func stringCapitalize(recv *Value, args []Value) (Value, error) {
	if err := checkArity("capitalize", args, 0); err != nil {
		return Value{}, err
	}
	if recv.s == "" {
		return NewString(""), nil
	}
	r := []rune(recv.s)
	upper := cases.Upper(language.Und).String(string(r[0]))
	return NewString(upper + string(r[1:])), nil
}

func stringAppend(recv *Value, args []Value) (Value, error) {
	if err := checkArity("append", args, 1); err != nil {
		return Value{}, err
	}
	return NewString(recv.s + args[0].String()), nil
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func stringIsEmail(recv *Value, args []Value) (Value, error) {
	if err := checkArity("is_email", args, 0); err != nil {
		return Value{}, err
	}
	if !emailRe.MatchString(recv.s) {
		return NewBool(false), nil
	}
	_, err := mail.ParseAddress(recv.s)
	return NewBool(err == nil), nil
}

func stringFromJSON(recv *Value, args []Value) (Value, error) {
	if err := checkArity("from_json", args, 0); err != nil {
		return Value{}, err
	}
	v, err := FromJSON([]byte(recv.s))
	if err != nil {
		return Value{}, &OpError{Op: "from_json", Message: err.Error()}
	}
	return v, nil
}

// stringToJSON parses the receiver as JSON, falling back to YAML and then
// XML (spec §4.1: "YAML/XML-to-JSON fallback"), and re-renders as a JSON
// string.
func stringToJSON(recv *Value, args []Value) (Value, error) {
	if err := checkArity("to_json", args, 0); err != nil {
		return Value{}, err
	}
	if v, err := FromJSON([]byte(recv.s)); err == nil {
		return NewString(v.String()), nil
	}
	var yamlDoc any
	if err := yaml.Unmarshal([]byte(recv.s), &yamlDoc); err == nil {
		v := fromAny(normalizeYAML(yamlDoc))
		return NewString(v.String()), nil
	}
	if v, err := xmlToValue(recv.s); err == nil {
		return NewString(v.String()), nil
	}
	return Value{}, &OpError{Op: "to_json", Message: "value is not valid JSON, YAML, or XML"}
}

// normalizeYAML converts the map[any]any/[]any shapes yaml.v3 produces for
// untyped documents into the map[string]any/[]any shapes fromAny expects.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeYAML(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return t
	}
}

// xmlNode is a generic structural walk of an XML document, enough to
// produce a JSON-ish tree (no namespace/attribute fidelity is attempted;
// this is a best-effort fallback, matching the original engine's own
// "fallback" framing rather than a full XML-to-JSON mapping standard).
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

func xmlToValue(s string) (Value, error) {
	var root xmlNode
	if err := xml.Unmarshal([]byte(s), &root); err != nil {
		return Value{}, err
	}
	return xmlNodeToValue(root), nil
}

func xmlNodeToValue(n xmlNode) Value {
	if len(n.Children) == 0 {
		text := strings.TrimSpace(n.Content)
		if text == "" && len(n.Attrs) == 0 {
			return NewString("")
		}
		if len(n.Attrs) == 0 {
			return NewString(text)
		}
	}
	fields := map[string]Value{}
	var order []string
	for _, a := range n.Attrs {
		key := "@" + a.Name.Local
		fields[key] = NewString(a.Value)
		order = append(order, key)
	}
	for _, c := range n.Children {
		fields[c.XMLName.Local] = xmlNodeToValue(c)
		order = append(order, c.XMLName.Local)
	}
	if text := strings.TrimSpace(n.Content); text != "" {
		fields["#text"] = NewString(text)
		order = append(order, "#text")
	}
	return NewObject(fields, order)
}

func stringEncodeURI(recv *Value, args []Value) (Value, error) {
	if err := checkArity("encode_uri", args, 0); err != nil {
		return Value{}, err
	}
	return NewString((&url.URL{Path: recv.s}).EscapedPath()), nil
}

func stringDecodeURI(recv *Value, args []Value) (Value, error) {
	if err := checkArity("decode_uri", args, 0); err != nil {
		return Value{}, err
	}
	decoded, err := url.PathUnescape(recv.s)
	if err != nil {
		return Value{}, &OpError{Op: "decode_uri", Message: err.Error()}
	}
	return NewString(decoded), nil
}

func stringEncodeURIComponent(recv *Value, args []Value) (Value, error) {
	if err := checkArity("encode_uri_component", args, 0); err != nil {
		return Value{}, err
	}
	return NewString(url.QueryEscape(recv.s)), nil
}

func stringDecodeURIComponent(recv *Value, args []Value) (Value, error) {
	if err := checkArity("decode_uri_component", args, 0); err != nil {
		return Value{}, err
	}
	decoded, err := url.QueryUnescape(recv.s)
	if err != nil {
		return Value{}, &OpError{Op: "decode_uri_component", Message: err.Error()}
	}
	return NewString(decoded), nil
}

func stringEncodeHTMLEntities(recv *Value, args []Value) (Value, error) {
	if err := checkArity("encode_html_entities", args, 0); err != nil {
		return Value{}, err
	}
	return NewString(html.EscapeString(recv.s)), nil
}

func stringDecodeHTMLEntities(recv *Value, args []Value) (Value, error) {
	if err := checkArity("decode_html_entities", args, 0); err != nil {
		return Value{}, err
	}
	return NewString(html.UnescapeString(recv.s)), nil
}
