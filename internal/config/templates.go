package config

import (
	"fmt"
	"os"
)

// Template returns a commented geminid.toml carrying the defaults.
func Template() string {
	return geminidTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(geminidTemplate), 0o600)
}

const geminidTemplate = `# geminid configuration
content_root = "content-root"
host = "0.0.0.0"
port = 1965

# TLS identity: either a PEM pair or a PKCS#12 bundle.
cert_file = "cert.pem"
key_file = "key.pem"
# identity_file = "identity.p12"
# identity_passphrase = ""

log_level = "info"
read_timeout = "30s"
write_timeout = "30s"

# 0 disables the admission limit.
max_connections = 256

index_name = "index.gmi"
form_suffix = ".form.gmi"
hide_dotfiles = false

# metrics_addr = "127.0.0.1:9465"
`
