package service

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/fulldump/apitest"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/fulldump/ledgerdb/utils"
)

// Save writes the request and response of an acceptance step as a markdown
// page into API_EXAMPLES_PATH, when it is set.
func Save(response *apitest.Response, title, description string) {

	examplesPath := os.Getenv("API_EXAMPLES_PATH")
	if examplesPath == "" {
		return
	}

	request := response.Request

	query := request.URL.RawQuery
	if query != "" {
		query = "?" + query
	}
	requestBody := formatBody(response.BodyRequestString())

	s := &strings.Builder{}

	fmt.Fprintf(s, "# %s\n", title)
	fmt.Fprintf(s, "%s\n", trimIndent(description))

	s.WriteString("Curl example:\n\n```sh\ncurl ")
	if request.Method != "GET" {
		fmt.Fprintf(s, "-X %s ", request.Method)
	}
	fmt.Fprintf(s, "\"https://example.com%s%s\"", request.URL.Path, query)
	for _, k := range utils.GetKeys(request.Header) {
		for _, v := range request.Header[k] {
			fmt.Fprintf(s, " \\\n-H \"%s: %s\"", k, v)
		}
	}
	if requestBody != "" {
		fmt.Fprintf(s, " \\\n-d '%s'", requestBody)
	}
	s.WriteString("\n```\n\n\n")

	s.WriteString("HTTP request/response example:\n\n```http\n")
	fmt.Fprintf(s, "%s %s%s %s\n", request.Method, request.URL.Path, query, request.Proto)
	s.WriteString("Host: example.com\n")
	for _, k := range utils.GetKeys(request.Header) {
		for _, v := range request.Header[k] {
			fmt.Fprintf(s, "%s: %s\n", k, v)
		}
	}
	fmt.Fprintf(s, "\n%s\n\n", requestBody)

	fmt.Fprintf(s, "%s %s\n", response.Proto, response.Status)
	for _, k := range utils.GetKeys(response.Header) {
		if k == "Date" {
			s.WriteString("Date: Mon, 15 Aug 2022 02:08:13 GMT\n")
			continue
		}
		for _, v := range response.Header[k] {
			fmt.Fprintf(s, "%s: %s\n", k, v)
		}
	}
	fmt.Fprintf(s, "\n%s\n```\n\n\n", formatBody(response.BodyString()))

	filename := strings.ReplaceAll(strings.ToLower(title), " ", "_") + ".md"
	p := path.Join(examplesPath, path.Clean(filename))
	if err := os.WriteFile(p, []byte(s.String()), 0o666); err != nil {
		fmt.Println("Saving err:", err)
	}
}

// formatBody indents JSON bodies, every line of an NDJSON body on its own.
func formatBody(body string) string {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	for i, line := range lines {
		value := jsontext.Value(line)
		if !value.IsValid() {
			return body
		}
		indented := jsontext.Value(bytes.Clone(value))
		if err := indented.Indent(jsontext.WithIndent("    ")); err != nil {
			return body
		}
		lines[i] = string(indented)
	}
	return strings.Join(lines, "\n")
}

// trimIndent removes the common leading tabs of a raw string literal.
func trimIndent(d string) string {
	lines := strings.Split(d, "\n")

	tabs := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, "\t"))
		if tabs < 0 || n < tabs {
			tabs = n
		}
	}

	prefix := strings.Repeat("\t", max(tabs, 0))
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}

	return strings.Join(lines, "\n")
}
