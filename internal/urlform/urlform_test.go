package urlform

import (
	"bytes"
	"mime/multipart"
	"testing"
)

func TestExtractQueryString(t *testing.T) {
	headers := map[string]string{"QUERY_STRING": "a=1&b=2"}
	params, err := Extract(headers, nil)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if v, _ := params.String("a"); v != "1" {
		t.Errorf("a = %q, want 1", v)
	}
	if v, _ := params.String("b"); v != "2" {
		t.Errorf("b = %q, want 2", v)
	}
}

func TestExtractFormPost(t *testing.T) {
	headers := map[string]string{
		"CONTENT_LENGTH":    "7",
		"HTTP_CONTENT_TYPE": "application/x-www-form-urlencoded",
	}
	params, err := Extract(headers, []byte("a=1&b=2"))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if v, _ := params.String("a"); v != "1" {
		t.Errorf("a = %q, want 1", v)
	}
	if v, _ := params.String("b"); v != "2" {
		t.Errorf("b = %q, want 2", v)
	}
}

func TestExtractCombinesQueryAndBody(t *testing.T) {
	headers := map[string]string{
		"QUERY_STRING":      "a=1",
		"HTTP_CONTENT_TYPE": formURLEncoded,
	}
	params, err := Extract(headers, []byte("b=2"))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if v, _ := params.String("a"); v != "1" {
		t.Errorf("a = %q, want 1", v)
	}
	if v, _ := params.String("b"); v != "2" {
		t.Errorf("b = %q, want 2", v)
	}
}

func TestExtractPercentAndPlusDecoding(t *testing.T) {
	headers := map[string]string{"QUERY_STRING": "name=john%20doe&city=new+york"}
	params, err := Extract(headers, nil)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if v, _ := params.String("name"); v != "john doe" {
		t.Errorf("name = %q, want %q", v, "john doe")
	}
	if v, _ := params.String("city"); v != "new york" {
		t.Errorf("city = %q, want %q", v, "new york")
	}
}

func TestExtractBodyIgnoredWithoutFormContentType(t *testing.T) {
	headers := map[string]string{"QUERY_STRING": "a=1"}
	params, err := Extract(headers, []byte("b=2"))
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if _, ok := params.String("b"); ok {
		t.Error("body should not have been parsed without form content type")
	}
}

func TestExtractMultipart(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("field_name", "field_value"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	headers := map[string]string{
		"HTTP_CONTENT_TYPE": w.FormDataContentType(),
	}
	params, err := Extract(headers, buf.Bytes())
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	v, ok := params["field_name"]
	if !ok {
		t.Fatal("field_name missing from params")
	}
	fp, ok := v.(*FieldProps)
	if !ok {
		t.Fatalf("field_name value type = %T, want *FieldProps", v)
	}
	if fp.Value != "field_value" {
		t.Errorf("field_name value = %q, want field_value", fp.Value)
	}
}

func TestDecodeTokenMalformedEscapePassesThrough(t *testing.T) {
	got := decodeToken("100%")
	if got != "100%" {
		t.Errorf("decodeToken(%q) = %q, want unchanged", "100%", got)
	}
}
