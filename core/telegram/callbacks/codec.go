package callbacks

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Telegram rejects callback_data longer than 64 bytes.
const MaxDataLen = 64

// EncodeData packs an action with url-escaped key/value params into the
// "action|k1=v1|k2=v2" wire form. Keys are emitted in sorted order so the
// output is stable. Errors when the result would exceed the Telegram
// callback_data limit.
func EncodeData(action string, params map[string]string) (string, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return "", fmt.Errorf("callbacks: action must be non-empty")
	}

	data := action
	if p := EncodeParams(params); p != "" {
		data += "|" + p
	}
	if len(data) > MaxDataLen {
		return "", fmt.Errorf("callbacks: data %q exceeds %d bytes", data, MaxDataLen)
	}
	return data, nil
}

// EncodeParams packs params into "k1=v1|k2=v2" with url-escaped values and
// sorted keys. Length is not checked here; callers owning the full
// callback data enforce MaxDataLen.
func EncodeParams(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+url.QueryEscape(params[k]))
	}
	return strings.Join(parts, "|")
}

// DecodeParams parses the payload part ("k1=v1|k2=v2") back into a map.
// Segments without '=' and values that fail unescaping are skipped.
func DecodeParams(payload string) map[string]string {
	params := make(map[string]string)
	if payload == "" {
		return params
	}
	for _, seg := range strings.Split(payload, "|") {
		k, v, ok := strings.Cut(seg, "=")
		if !ok || k == "" {
			continue
		}
		decoded, err := url.QueryUnescape(v)
		if err != nil {
			continue
		}
		params[k] = decoded
	}
	return params
}
