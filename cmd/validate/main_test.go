package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefault(t *testing.T) {
	v := &CatalogValidator{}
	assert.NoError(t, v.validateDefault())
}

func TestValidateData(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name: "valid",
			data: `{"voices":[
				{"id":"a","name":"Ann","gender":"female","age":"young","accent":"american","tags":["warm"],"use_case":"narration","providers":{"openai":"nova"}},
				{"id":"b","name":"Bo","gender":"male","age":"old","accent":"irish","tags":["gruff"],"use_case":"characters"}
			]}`,
		},
		{
			name:    "unknown field",
			data:    `{"voices":[{"id":"a","pitch":"high"}]}`,
			wantErr: "strict JSON",
		},
		{
			name: "duplicate id",
			data: `{"voices":[
				{"id":"a","name":"Ann","gender":"female","age":"young","use_case":"narration"},
				{"id":"a","name":"Al","gender":"male","age":"young","use_case":"characters"}
			]}`,
			wantErr: "duplicate voice id",
		},
		{
			name: "no narrator and bad values",
			data: `{"voices":[
				{"id":"a","name":"Ann","gender":"robot","age":"young","tags":["Warm Voice"],"use_case":"characters","providers":{"polly":"Joanna"}},
				{"id":"b","name":"","gender":"male","age":"ancient","use_case":"characters"}
			]}`,
			wantErr: "no narration voices",
		},
		{
			name:    "invalid json",
			data:    `{"voices":`,
			wantErr: "invalid JSON",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &CatalogValidator{}
			err := v.validateData([]byte(tt.data), "test.json")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateData_ReportsEveryProblem(t *testing.T) {
	v := &CatalogValidator{}
	err := v.validateData([]byte(`{"voices":[
		{"id":"a","name":"Ann","gender":"robot","age":"young","tags":["Warm Voice"],"use_case":"narration","providers":{"polly":"Joanna"}},
		{"id":"b","name":"","gender":"male","age":"ancient","use_case":"characters"}
	]}`), "test.json")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "unknown gender 'robot'")
	assert.Contains(t, msg, "tag 'Warm Voice'")
	assert.Contains(t, msg, "unknown provider 'polly'")
	assert.Contains(t, msg, "has no name")
	assert.Contains(t, msg, "unknown age 'ancient'")
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()

	v := &CatalogValidator{}
	err := v.validateFile(filepath.Join(dir, "voices.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".json extension")

	path := filepath.Join(dir, "voices.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"voices":[
		{"id":"a","name":"Ann","gender":"female","age":"young","use_case":"narration"},
		{"id":"b","name":"Bo","gender":"male","age":"old","use_case":"characters"}
	]}`), 0o644))
	assert.NoError(t, v.validateFile(path))
}
