// Package nmap converts nmap XML reports into raw scan documents.
package nmap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CZERTAINLY/vuln-lens/internal/log"
	"github.com/CZERTAINLY/vuln-lens/internal/model"

	"github.com/Ullaakut/nmap/v3"
)

// Scanner is the value of scan.scanner in converted documents.
const Scanner = "nmap"

// Parse decodes an nmap XML report (nmap -oX) into a raw document. Every host
// becomes a host record with its open ports as services. Script results
// reporting VULNERABLE become findings bound to their port.
func Parse(ctx context.Context, content []byte) (model.Raw, error) {
	var run nmap.Run
	if err := nmap.Parse(content, &run); err != nil {
		return nil, fmt.Errorf("nmap: parse xml: %w", err)
	}
	return RunToRaw(ctx, &run), nil
}

// RunToRaw converts a parsed nmap run.
func RunToRaw(ctx context.Context, run *nmap.Run) model.Raw {
	scan := model.Raw{"scanner": Scanner}
	if run == nil {
		return model.Raw{"scan": scan, "hosts": []any{}}
	}
	if run.Args != "" {
		scan["args"] = run.Args
	}
	if run.StartStr != "" {
		scan["start"] = run.StartStr
	}
	if run.Version != "" {
		scan["version"] = run.Version
	}

	hosts := make([]any, 0, len(run.Hosts))
	for _, h := range run.Hosts {
		hosts = append(hosts, HostToRaw(ctx, h))
	}
	slog.DebugContext(ctx, "nmap report converted", "hosts", len(hosts))
	return model.Raw{"scan": scan, "hosts": hosts}
}

// HostToRaw converts a single nmap host.
func HostToRaw(ctx context.Context, h nmap.Host) model.Raw {
	address := pickAddress(h)
	ctx = log.ContextAttrs(ctx, slog.String("ip", address))

	host := model.Raw{"ip": address}
	if len(h.Hostnames) > 0 && h.Hostnames[0].Name != "" {
		host["hostname"] = h.Hostnames[0].Name
	}
	if len(h.OS.Matches) > 0 && h.OS.Matches[0].Name != "" {
		host["os"] = h.OS.Matches[0].Name
	}

	services := make([]any, 0, len(h.Ports))
	var findings []any
	for _, p := range h.Ports {
		if !strings.HasPrefix(strings.ToLower(p.State.State), "open") {
			slog.DebugContext(ctx, "port skipped", "port", p.ID, "state", p.State.State)
			continue
		}
		svc := model.Raw{
			"port":     int(p.ID),
			"protocol": p.Protocol,
		}
		if p.Service.Name != "" {
			svc["service"] = p.Service.Name
		}
		if p.Service.Product != "" {
			svc["product"] = p.Service.Product
		}
		services = append(services, svc)
		findings = append(findings, scriptFindings(p)...)
	}
	host["services"] = services
	if len(findings) > 0 {
		host["vulnerabilities"] = findings
	}
	return host
}

func scriptFindings(p nmap.Port) []any {
	var ret []any
	for _, s := range p.Scripts {
		if !strings.Contains(s.Output, "VULNERABLE") {
			continue
		}
		ret = append(ret, model.Raw{
			"plugin_id":   s.ID,
			"name":        s.ID,
			"port":        int(p.ID),
			"description": strings.TrimSpace(s.Output),
		})
	}
	return ret
}

// pickAddress prefers ipv4, then ipv6, then whatever comes first
func pickAddress(h nmap.Host) string {
	for _, typ := range []string{"ipv4", "ipv6"} {
		for _, a := range h.Addresses {
			if a.AddrType == typ {
				return a.Addr
			}
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].Addr
	}
	return ""
}
