package main

import (
    "encoding/json"
    "fmt"
    "io"
)

// parsePayload accepts a JSON document; anything else is sent as a string.
func parsePayload(s string) any {
    var v any
    if err := json.Unmarshal([]byte(s), &v); err != nil { return s }
    return v
}

func printJSON(w io.Writer, v any) error {
    b, err := json.Marshal(v)
    if err != nil { return fmt.Errorf("render result: %w", err) }
    _, err = fmt.Fprintln(w, string(b))
    return err
}
