package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserIDs(t *testing.T) {
	ids, err := parseUserIDs("1, 2,,3 ")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = parseUserIDs("1,x")
	assert.Error(t, err)
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)

	assert.Equal(t, usage, buf.String())
	assert.False(t, strings.HasSuffix(buf.String(), "\n\n"), "usage ends with a single newline")
	assert.Contains(t, buf.String(), "link-item")
}
