package nmap_test

import (
	"testing"

	"github.com/CZERTAINLY/vuln-lens/internal/model"
	"github.com/CZERTAINLY/vuln-lens/internal/nmap"
	"github.com/CZERTAINLY/vuln-lens/internal/normalize"
	"github.com/stretchr/testify/require"
)

const report = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" args="nmap -sV -oX - 10.0.0.0/24" start="1700000000" startstr="Tue Nov 14 22:13:20 2023" version="7.94">
  <host>
    <status state="up" reason="arp-response"/>
    <address addr="aa:bb:cc:dd:ee:ff" addrtype="mac"/>
    <address addr="10.0.0.5" addrtype="ipv4"/>
    <hostnames><hostname name="web01" type="PTR"/></hostnames>
    <ports>
      <port protocol="tcp" portid="443">
        <state state="open" reason="syn-ack"/>
        <service name="https" product="nginx"/>
        <script id="ssl-heartbleed" output="VULNERABLE:&#xa;  The Heartbleed Bug"/>
      </port>
      <port protocol="tcp" portid="22">
        <state state="open" reason="syn-ack"/>
        <service name="ssh"/>
      </port>
      <port protocol="tcp" portid="23">
        <state state="closed" reason="reset"/>
        <service name="telnet"/>
      </port>
    </ports>
    <os><osmatch name="Linux 5.4" accuracy="98"/></os>
  </host>
  <host>
    <status state="up"/>
    <address addr="fe80::1" addrtype="ipv6"/>
  </host>
</nmaprun>`

func TestParse(t *testing.T) {
	t.Parallel()

	raw, err := nmap.Parse(t.Context(), []byte(report))
	require.NoError(t, err)

	scan, ok := raw["scan"].(model.Raw)
	require.True(t, ok)
	require.Equal(t, nmap.Scanner, scan["scanner"])
	require.Equal(t, "nmap -sV -oX - 10.0.0.0/24", scan["args"])

	hosts, ok := raw["hosts"].([]any)
	require.True(t, ok)
	require.Len(t, hosts, 2)

	web := hosts[0].(model.Raw)
	require.Equal(t, "10.0.0.5", web["ip"])
	require.Equal(t, "web01", web["hostname"])
	require.Equal(t, "Linux 5.4", web["os"])
	require.Equal(t, []any{
		model.Raw{"port": 443, "protocol": "tcp", "service": "https", "product": "nginx"},
		model.Raw{"port": 22, "protocol": "tcp", "service": "ssh"},
	}, web["services"])

	vulns, ok := web["vulnerabilities"].([]any)
	require.True(t, ok)
	require.Len(t, vulns, 1)
	require.Equal(t, "ssl-heartbleed", vulns[0].(model.Raw)["plugin_id"])
	require.Equal(t, 443, vulns[0].(model.Raw)["port"])

	v6 := hosts[1].(model.Raw)
	require.Equal(t, "fe80::1", v6["ip"])
	require.Equal(t, []any{}, v6["services"])
	require.NotContains(t, v6, "vulnerabilities")
}

func TestParse_Normalize(t *testing.T) {
	t.Parallel()

	raw, err := nmap.Parse(t.Context(), []byte(report))
	require.NoError(t, err)

	doc, err := normalize.Normalize(t.Context(), raw)
	require.NoError(t, err)
	require.Len(t, doc.Hosts, 2)
	require.Len(t, doc.Hosts[0].Services, 2)
	require.Len(t, doc.Hosts[0].Vulnerabilities, 1)
	require.Equal(t, model.DefaultOS, doc.Hosts[1].OS)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	_, err := nmap.Parse(t.Context(), []byte("<nmaprun><host>"))
	require.Error(t, err)
}

func TestRunToRaw_Nil(t *testing.T) {
	t.Parallel()

	raw := nmap.RunToRaw(t.Context(), nil)
	require.Equal(t, []any{}, raw["hosts"])
}
