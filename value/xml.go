package value

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// MarshalXML encodes v per spec.md §6's Value XML grammar. encoding/xml's
// struct-tag-bound encoder is not used: the grammar's per-kind element
// names and the matrix's column-major child order don't map onto a single
// Go struct, so this builds the document directly with xml.Encoder.
func MarshalXML(v Value) ([]byte, error) {
	var sb strings.Builder
	enc := xml.NewEncoder(&sb)
	if err := encodeValue(enc, v); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func encodeValue(enc *xml.Encoder, v Value) error {
	switch v.kind {
	case KindBool:
		return encodeLeaf(enc, "boolean", strconv.FormatBool(v.b))
	case KindInt:
		return encodeLeaf(enc, "integer", strconv.FormatInt(v.i, 10))
	case KindDouble:
		return encodeLeaf(enc, "double", strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindString:
		return encodeLeaf(enc, "string", v.s)
	case KindXML:
		return encodeLeaf(enc, "xml", v.s)
	case KindNull:
		start := xml.StartElement{Name: xml.Name{Local: "null"}}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		return enc.EncodeToken(start.End())
	case KindSet:
		start := xml.StartElement{Name: xml.Name{Local: "set"}}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		for _, e := range v.set {
			if err := encodeValue(enc, e); err != nil {
				return err
			}
		}
		return enc.EncodeToken(start.End())
	case KindMap:
		start := xml.StartElement{Name: xml.Name{Local: "map"}}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		for _, e := range v.mp {
			keyStart := xml.StartElement{Name: xml.Name{Local: "key"}, Attr: []xml.Attr{{Name: xml.Name{Local: "name"}, Value: e.Key}}}
			if err := enc.EncodeToken(keyStart); err != nil {
				return err
			}
			if err := encodeValue(enc, e.Value); err != nil {
				return err
			}
			if err := enc.EncodeToken(keyStart.End()); err != nil {
				return err
			}
		}
		return enc.EncodeToken(start.End())
	case KindTuple:
		parts := make([]string, len(v.tuple))
		for i, f := range v.tuple {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return encodeLeaf(enc, "tuple", strings.Join(parts, " "))
	case KindTable:
		start := xml.StartElement{Name: xml.Name{Local: "table"}, Attr: []xml.Attr{
			{Name: xml.Name{Local: "width"}, Value: strconv.Itoa(v.table.Width)},
			{Name: xml.Name{Local: "height"}, Value: strconv.Itoa(v.table.Height)},
		}}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		var rows []string
		for r := 0; r < v.table.Height; r++ {
			var cols []string
			for c := 0; c < v.table.Width; c++ {
				cols = append(cols, strconv.FormatFloat(v.table.At(r, c), 'g', -1, 64))
			}
			rows = append(rows, "("+strings.Join(cols, ",")+")")
		}
		text := "(" + strings.Join(rows, ",") + ")"
		if err := enc.EncodeToken(xml.CharData(text)); err != nil {
			return err
		}
		return enc.EncodeToken(start.End())
	case KindMatrix:
		start := xml.StartElement{Name: xml.Name{Local: "matrix"}, Attr: []xml.Attr{
			{Name: xml.Name{Local: "rows"}, Value: strconv.Itoa(v.matrix.Rows)},
			{Name: xml.Name{Local: "columns"}, Value: strconv.Itoa(v.matrix.Cols)},
			{Name: xml.Name{Local: "columnmax"}, Value: strconv.Itoa(v.matrix.Cols)},
			{Name: xml.Name{Local: "rowmax"}, Value: strconv.Itoa(v.matrix.Rows)},
			{Name: xml.Name{Local: "columnstep"}, Value: "0"},
			{Name: xml.Name{Local: "rowstep"}, Value: "0"},
		}}
		if err := enc.EncodeToken(start); err != nil {
			return err
		}
		// Column-major child order per spec.md §6.
		for c := 0; c < v.matrix.Cols; c++ {
			for r := 0; r < v.matrix.Rows; r++ {
				if err := encodeValue(enc, v.matrix.At(r, c)); err != nil {
					return err
				}
			}
		}
		return enc.EncodeToken(start.End())
	default:
		return fmt.Errorf("value: unmarshalable kind %s", v.kind)
	}
}

func encodeLeaf(enc *xml.Encoder, name, text string) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.CharData(text)); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

// UnmarshalXML decodes a single Value element per spec.md §6's grammar.
func UnmarshalXML(data []byte) (Value, error) {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	for {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return decodeValue(dec, start)
		}
	}
}

func decodeValue(dec *xml.Decoder, start xml.StartElement) (Value, error) {
	switch start.Name.Local {
	case "boolean":
		text, err := readText(dec, start)
		if err != nil {
			return Value{}, err
		}
		text = strings.TrimSpace(text)
		return Bool(text == "true" || text == "1"), nil
	case "integer":
		text, err := readText(dec, start)
		if err != nil {
			return Value{}, err
		}
		i, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("value: bad integer %q: %w", text, err)
		}
		return Int(i), nil
	case "double":
		text, err := readText(dec, start)
		if err != nil {
			return Value{}, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return Value{}, fmt.Errorf("value: bad double %q: %w", text, err)
		}
		return Double(f), nil
	case "string":
		text, err := readText(dec, start)
		if err != nil {
			return Value{}, err
		}
		return String(text), nil
	case "xml":
		text, err := readText(dec, start)
		if err != nil {
			return Value{}, err
		}
		return XML(text), nil
	case "null":
		if err := skipToEnd(dec, start); err != nil {
			return Value{}, err
		}
		return Null(), nil
	case "tuple":
		text, err := readText(dec, start)
		if err != nil {
			return Value{}, err
		}
		fields := strings.Fields(text)
		fs := make([]float64, len(fields))
		for i, fld := range fields {
			f, err := strconv.ParseFloat(fld, 64)
			if err != nil {
				return Value{}, fmt.Errorf("value: bad tuple field %q: %w", fld, err)
			}
			fs[i] = f
		}
		return TupleOf(fs...), nil
	case "table":
		width, height := attrInt(start, "width"), attrInt(start, "height")
		text, err := readText(dec, start)
		if err != nil {
			return Value{}, err
		}
		nums := parseParenthesizedNumbers(text)
		t := &Table{Width: width, Height: height, Data: make([]float64, width*height)}
		copy(t.Data, nums)
		return TableOf(t), nil
	case "set":
		var elems []Value
		for {
			tok, err := dec.Token()
			if err != nil {
				return Value{}, err
			}
			switch tt := tok.(type) {
			case xml.StartElement:
				child, err := decodeValue(dec, tt)
				if err != nil {
					return Value{}, err
				}
				elems = append(elems, child)
			case xml.EndElement:
				return SetOf(elems...), nil
			}
		}
	case "map":
		var entries []MapEntry
		for {
			tok, err := dec.Token()
			if err != nil {
				return Value{}, err
			}
			switch tt := tok.(type) {
			case xml.StartElement:
				if tt.Name.Local != "key" {
					return Value{}, fmt.Errorf("value: expected <key>, got <%s>", tt.Name.Local)
				}
				name := attrStr(tt, "name")
				var inner Value
				for {
					itok, err := dec.Token()
					if err != nil {
						return Value{}, err
					}
					if istart, ok := itok.(xml.StartElement); ok {
						inner, err = decodeValue(dec, istart)
						if err != nil {
							return Value{}, err
						}
						continue
					}
					if _, ok := itok.(xml.EndElement); ok {
						break
					}
				}
				entries = append(entries, MapEntry{Key: name, Value: inner})
			case xml.EndElement:
				return MapOf(entries...), nil
			}
		}
	case "matrix":
		rows, cols := attrInt(start, "rows"), attrInt(start, "columns")
		m := NewMatrix(rows, cols)
		idx := 0
		for {
			tok, err := dec.Token()
			if err != nil {
				return Value{}, err
			}
			switch tt := tok.(type) {
			case xml.StartElement:
				child, err := decodeValue(dec, tt)
				if err != nil {
					return Value{}, err
				}
				// Children arrive column-major; convert idx -> (row,col).
				c := idx / rows
				r := idx % rows
				m.Set(r, c, child)
				idx++
			case xml.EndElement:
				return MatrixOf(m), nil
			}
		}
	default:
		return Value{}, fmt.Errorf("value: unknown element <%s>", start.Name.Local)
	}
}

func readText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch tt := tok.(type) {
		case xml.CharData:
			sb.Write(tt)
		case xml.EndElement:
			return sb.String(), nil
		}
	}
}

func skipToEnd(dec *xml.Decoder, start xml.StartElement) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return nil
			}
			depth--
		}
	}
}

func attrStr(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func attrInt(start xml.StartElement, name string) int {
	i, _ := strconv.Atoi(attrStr(start, name))
	return i
}

// parseParenthesizedNumbers extracts every number from a
// "((r0c0,r0c1),(r1c0,...))" style string, in row-major reading order.
func parseParenthesizedNumbers(s string) []float64 {
	var nums []float64
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		if f, err := strconv.ParseFloat(cur.String(), 64); err == nil {
			nums = append(nums, f)
		}
		cur.Reset()
	}
	for _, r := range s {
		switch r {
		case '(', ')', ',':
			flush()
		default:
			if !isSpaceRune(r) {
				cur.WriteRune(r)
			}
		}
	}
	flush()
	return nums
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
