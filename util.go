package spacechat

import (
	"net/url"
	"strconv"
	"strings"
)

func urlQueryEscape(v string) string {
	return url.QueryEscape(v)
}

func urlPathEscape(v string) string {
	return url.PathEscape(v)
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
