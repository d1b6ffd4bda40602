package snapshot

import (
	"bytes"
	"path/filepath"
	"text/template"
	"time"

	"github.com/marmos91/chainsnap/pkg/instance"
)

var guideTemplate = template.Must(template.New("guide").Parse(`{{.Network}} {{.Retention}} node snapshot
Created: {{.Created}}

Archive:  {{.Archive}}
Checksum: {{.Checksum}}
SHA-256:  {{.Digest}}

The archive contains the node's "{{.DataDirName}}" directory.
{{- if .AdminPort}}
Admin API port: {{.AdminPort}}{{end}}
{{- if .P2PPort}}
P2P port: {{.P2PPort}}{{end}}

To restore:

  1. Stop the node.
  2. Verify the download:
       sha256sum -c {{.Checksum}}
  3. Move the existing "{{.DataDirName}}" directory out of the way.
  4. Extract the archive in the directory that should contain "{{.DataDirName}}":
       tar -xzf {{.Archive}}
  5. Start the node. It continues syncing from the snapshot height.
{{- if eq .Retention "pruned"}}

This is a pruned snapshot. It is not suitable for an archive node.{{end}}
`))

type guideData struct {
	Network     instance.Network
	Retention   instance.Retention
	Created     string
	Archive     string
	Checksum    string
	Digest      string
	DataDirName string
	AdminPort   int
	P2PPort     int
}

// RenderGuide produces the RECOVERY.txt text for an archive built from inst.
func RenderGuide(inst instance.ServiceInstance, archive, digest string, created time.Time) ([]byte, error) {
	var buf bytes.Buffer
	err := guideTemplate.Execute(&buf, guideData{
		Network:     inst.Network,
		Retention:   inst.Retention,
		Created:     created.UTC().Format(time.RFC3339),
		Archive:     archive,
		Checksum:    ChecksumName(archive),
		Digest:      digest,
		DataDirName: filepath.Base(inst.DataDir),
		AdminPort:   inst.AdminPort,
		P2PPort:     inst.P2PPort,
	})
	return buf.Bytes(), err
}
