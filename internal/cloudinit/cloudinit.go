// Package cloudinit renders the vendor-neutral first-boot document a
// Provider adapter hands to a new instance. The template shape — a single
// text/template string rendered into a cloud-config YAML document — is
// grounded in the teacher's own cloud-init builder; the content is spuff's
// own two-phase bootstrap instead of the teacher's single-phase one.
package cloudinit

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"text/template"

	"github.com/spuff/spuff/pkg/agentapi"
)

// MaxDocumentBytes is the conservative ceiling spec.md §4.2 imposes,
// chosen to fit the tightest vendor's user-data limit.
const MaxDocumentBytes = 48 * 1024

// Data is everything the template needs to render one instance's first-boot
// document.
type Data struct {
	InstanceName  string
	AdminUser     string
	SSHPublicKey  string
	AgentToken    string
	AgentURL      string
	AgentVersion  string
	ProjectJSON   string // pre-resolved ProjectSpec, marshaled to JSON by the caller
}

const documentTemplate = `#cloud-config
hostname: {{.InstanceName}}

users:
  - name: {{.AdminUser}}
    sudo: ALL=(ALL) NOPASSWD:ALL
    shell: /bin/bash
    lock_passwd: true
    ssh_authorized_keys:
      - {{.SSHPublicKey}}

disable_root: true

package_update: true

packages:
  - git
  - curl
  - vim
  - htop
  - unzip
  - build-essential

write_files:
  - path: /opt/spuff/project.json
    owner: {{.AdminUser}}:{{.AdminUser}}
    permissions: '0600'
    content: |
      {{.ProjectJSON}}

  - path: /opt/spuff/bootstrap.status
    content: "unknown"

  - path: /opt/spuff/bootstrap-sync.sh
    permissions: '0755'
    content: |
      #!/bin/bash
      set -euo pipefail
      echo -n "running" > /opt/spuff/bootstrap.status
      mkdir -p /opt/spuff/bin /home/{{.AdminUser}}/projects
      chown -R {{.AdminUser}}:{{.AdminUser}} /opt/spuff /home/{{.AdminUser}}/projects
      curl -fsSL {{.AgentURL}} -o /opt/spuff/bin/spuff-agent
      chmod +x /opt/spuff/bin/spuff-agent

  - path: /opt/spuff/bootstrap-async.sh
    permissions: '0755'
    content: |
      #!/bin/bash
      set -uo pipefail
      for i in $(seq 1 30); do
        curl -fsS -o /dev/null http://127.0.0.1:7575/health && break
        sleep 2
      done
      if curl -fsS -X POST -H "{{agentTokenHeader}}: {{.AgentToken}}" http://127.0.0.1:7575/project/setup; then
        echo -n "ready" > /opt/spuff/bootstrap.status
      else
        echo -n "failed" > /opt/spuff/bootstrap.status
      fi

  - path: /etc/systemd/system/spuff-agent.service
    content: |
      [Unit]
      Description=spuff agent
      After=network.target

      [Service]
      Type=simple
      User={{.AdminUser}}
      ExecStart=/opt/spuff/bin/spuff-agent --token {{.AgentToken}}
      Restart=always
      RestartSec=5
      Environment="PATH=/usr/local/bin:/usr/bin:/bin"

      [Install]
      WantedBy=multi-user.target

runcmd:
  - bash /opt/spuff/bootstrap-sync.sh
  - systemctl daemon-reload
  - systemctl enable spuff-agent
  - systemctl start spuff-agent
  - nohup bash /opt/spuff/bootstrap-async.sh >/opt/spuff/bootstrap-async.log 2>&1 < /dev/null &

final_message: "spuff instance ready in $UPTIME seconds"
`

// Build renders the first-boot document for data. The caller (the
// Orchestrator, per spec.md §4.3) is responsible for resolving ProjectSpec
// env values before marshaling them into data.ProjectJSON, and for
// base64-wrapping the result if the target provider requires it — this
// builder never decides vendor encoding.
func Build(data Data) (string, error) {
	funcs := template.FuncMap{
		"agentTokenHeader": func() string { return agentapi.AgentTokenHeader },
	}
	tmpl, err := template.New("cloudinit").Funcs(funcs).Parse(documentTemplate)
	if err != nil {
		return "", fmt.Errorf("parse cloud-init template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render cloud-init document: %w", err)
	}

	doc := buf.String()
	if len(doc) > MaxDocumentBytes {
		return "", fmt.Errorf("cloud-init document is %d bytes, exceeds %d byte limit", len(doc), MaxDocumentBytes)
	}
	return doc, nil
}

// Base64 wraps doc for vendors (per spec.md §4.2) that require the user-data
// payload to be base64-encoded rather than passed as raw text.
func Base64(doc string) string {
	return base64.StdEncoding.EncodeToString([]byte(doc))
}

// BuildProjectJSON marshals a resolved ProjectSpec for embedding, matching
// the wire shape the Agent expects to read back from
// /opt/spuff/project.json.
func BuildProjectJSON(spec *agentapi.ProjectSpec) (string, error) {
	b, err := marshalIndented(spec)
	if err != nil {
		return "", fmt.Errorf("marshal project spec: %w", err)
	}
	return string(b), nil
}
