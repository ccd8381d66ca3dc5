// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const (
	gzipPrefix = "GZIP:"

	// compressThreshold is the serialized size at which compression is
	// attempted; compressRatio is the maximum stored/original ratio at
	// which the compressed form is kept.
	compressThreshold = 1024
	compressRatio     = 0.8
)

// encodePayload returns the blob to store for the given serialized entry.
// Payloads under the threshold are stored verbatim. Larger payloads are
// gzipped and base64-wrapped, but only kept compressed when that actually
// saves space; otherwise the original wins.
func encodePayload(raw []byte) string {
	if len(raw) < compressThreshold {
		return string(raw)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		_ = zw.Close()
		return string(raw)
	}
	if err := zw.Close(); err != nil {
		return string(raw)
	}
	encoded := gzipPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
	if float64(len(encoded)) > compressRatio*float64(len(raw)) {
		return string(raw)
	}
	return encoded
}

// decodePayload transparently reverses encodePayload.
func decodePayload(stored string) ([]byte, error) {
	if !strings.HasPrefix(stored, gzipPrefix) {
		return []byte(stored), nil
	}
	compressed, err := base64.StdEncoding.DecodeString(stored[len(gzipPrefix):])
	if err != nil {
		return nil, fmt.Errorf("decode cached payload: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("gunzip cached payload: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gunzip cached payload: %w", err)
	}
	return raw, nil
}
