// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds TLS/mTLS configuration for secure Kafka connections,
// adapted from github.com/z5labs/humus's queue/kafka.TLSConfig.
type TLSConfig struct {
	CertFile string `yaml:"certFile"`
	CertData []byte `yaml:"certData"`

	KeyFile string `yaml:"keyFile"`
	KeyData []byte `yaml:"keyData"`

	CAFile string `yaml:"caFile"`
	CAData []byte `yaml:"caData"`

	ServerName string `yaml:"serverName"`

	MinVersion uint16 `yaml:"minVersion"`
	MaxVersion uint16 `yaml:"maxVersion"`
}

// BuildTLSConfig constructs a *tls.Config from cfg, supporting both
// file-path and in-memory certificate/key material.
func BuildTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		MinVersion: cfg.MinVersion,
		MaxVersion: cfg.MaxVersion,
		ServerName: cfg.ServerName,
	}

	var certData, keyData []byte
	var err error

	if cfg.CertFile != "" {
		certData, err = os.ReadFile(cfg.CertFile)
		if err != nil {
			return nil, fmt.Errorf("kconfig: failed to read client certificate file %q: %w", cfg.CertFile, err)
		}
	} else if len(cfg.CertData) > 0 {
		certData = cfg.CertData
	}

	if cfg.KeyFile != "" {
		keyData, err = os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("kconfig: failed to read client key file %q: %w", cfg.KeyFile, err)
		}
	} else if len(cfg.KeyData) > 0 {
		keyData = cfg.KeyData
	}

	if len(certData) > 0 && len(keyData) > 0 {
		cert, err := tls.X509KeyPair(certData, keyData)
		if err != nil {
			return nil, fmt.Errorf("kconfig: failed to load client certificate and key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	var caData []byte
	if cfg.CAFile != "" {
		caData, err = os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("kconfig: failed to read CA certificate file %q: %w", cfg.CAFile, err)
		}
	} else if len(cfg.CAData) > 0 {
		caData = cfg.CAData
	}

	if len(caData) > 0 {
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caData) {
			return nil, fmt.Errorf("kconfig: failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	return tlsConfig, nil
}
