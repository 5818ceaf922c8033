package deploy

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"text/template"

	"github.com/mistifyio/atmosphere"
	log "github.com/sirupsen/logrus"
)

// hostnameFields are the values available to a hostnaming template
type hostnameFields struct {
	One, Two, Three, Four string
	Domain                string
}

func octets(ip string) (hostnameFields, error) {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return hostnameFields{}, fmt.Errorf("IPv4 address expected: <%s> is not of the format VVV.XXX.YYY.ZZZ", ip)
	}
	return hostnameFields{
		One:   fmt.Sprint(parsed[0]),
		Two:   fmt.Sprint(parsed[1]),
		Three: fmt.Sprint(parsed[2]),
		Four:  fmt.Sprint(parsed[3]),
	}, nil
}

// BuildHostName renders the hostname of ip from the hostnaming settings.
// The raw ip is returned when no format is set or the format cannot be
// rendered.
func BuildHostName(s atmosphere.HostnamingSettings, ip string) string {
	if s.Format == "" {
		return ip
	}
	hasOctet := false
	for _, field := range []string{".One", ".Two", ".Three", ".Four"} {
		if strings.Contains(s.Format, field) {
			hasOctet = true
		}
	}
	if !hasOctet {
		log.WithField("format", s.Format).Error("invalid hostnaming format: expected at least one of the IP octets (ex: 'vm{{.Three}}-{{.Four}}.{{.Domain}}')")
	}

	fields, err := octets(ip)
	if err != nil {
		log.WithField("error", err).Error("cannot build hostname")
		return ip
	}
	fields.Domain = s.Domain

	tmpl, err := template.New("hostname").Option("missingkey=error").Parse(s.Format)
	if err != nil {
		log.WithField("error", err).Error("invalid hostnaming format")
		return ip
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, fields); err != nil {
		log.WithField("error", err).Error("invalid hostnaming format")
		return ip
	}
	return buf.String()
}

// JetstreamHostname returns the js-<three>-<four>.jetstream-cloud.org name of ip
func JetstreamHostname(ip string) (string, error) {
	fields, err := octets(ip)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("js-%s-%s.jetstream-cloud.org", fields.Three, fields.Four), nil
}
