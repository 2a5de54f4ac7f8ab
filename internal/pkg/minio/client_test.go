package minio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.AccessKeyID = "minioadmin"
		cfg.SecretAccessKey = "minioadmin"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }, wantErr: true},
		{name: "missing access key", mutate: func(c *Config) { c.AccessKeyID = "" }, wantErr: true},
		{name: "missing secret", mutate: func(c *Config) { c.SecretAccessKey = "" }, wantErr: true},
		{name: "missing bucket", mutate: func(c *Config) { c.Bucket = "" }, wantErr: true},
		{name: "bad lookup", mutate: func(c *Config) { c.BucketLookup = "virtual" }, wantErr: true},
		{name: "empty lookup", mutate: func(c *Config) { c.BucketLookup = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.Equal(t, BucketLookupAuto, cfg.BucketLookup)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewClient(&Config{}, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.AccessKeyID = "minioadmin"
	cfg.SecretAccessKey = "minioadmin"
	cfg.BucketLookup = BucketLookupPath

	// minio.New 不发起网络请求
	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "searchview-exports", client.Bucket())

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.PutBytes(context.Background(), "a.json", []byte("{}"), "application/json")
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = client.GetBytes(context.Background(), "a.json")
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestError(t *testing.T) {
	base := errors.New("boom")
	err := wrapError("PutObject", base, "bucket", "key")

	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "bucket=bucket, object=key")
	assert.Nil(t, wrapError("PutObject", nil, "", ""))

	assert.True(t, IsNotFound(ErrObjectNotFound))
	assert.True(t, IsNotFound(wrapError("GetObject", ErrObjectNotFound, "b", "k")))
	assert.False(t, IsNotFound(base))
	assert.False(t, IsNotFound(nil))
}
