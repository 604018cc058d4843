package rules

import (
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

var (
	dnsLabel        = `[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?`
	hostnamePattern = regexp.MustCompile(`^` + dnsLabel + `(?:\.` + dnsLabel + `)*$`)
	ipv4Pattern     = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	portPattern     = regexp.MustCompile(`^\d{1,5}$`)

	brandPattern    = regexp.MustCompile(`metamask|uniswap|opensea|coinbase|binance|ledger|trezor|walletconnect|phantom|pancakeswap|etherscan|rainbow`)
	phishingPattern = regexp.MustCompile(`airdrop|giveaway|claim-?reward|free-?(eth|nft|mint|crypto)|wallet-?(verify|validate|validation|sync|restore)|secure-?login|seed-?phrase`)
)

var (
	errEmptyHost   = errors.New("empty host")
	errInvalidPort = errors.New("invalid port")
	errInvalidHost = errors.New("invalid host")
)

// authority is a parsed host[:port] as carried in the message header.
type authority struct {
	Host    string // lower-case ASCII form
	Unicode string // display form, differs from Host for IDNs
	Port    string
	IP      net.IP
	IDN     bool
}

func (a authority) HasPort() bool { return a.Port != "" }

// parseAuthority accepts a DNS name, an IDN, localhost, an IPv4 literal or a
// bracketed IPv6 literal, each with an optional numeric port.
func parseAuthority(s string) (authority, error) {
	var a authority
	host := s
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return a, errInvalidHost
		}
		host = s[1:end]
		rest := s[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return a, errInvalidHost
			}
			a.Port = rest[1:]
			if !validPort(a.Port) {
				return a, errInvalidPort
			}
		}
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() != nil {
			return a, errInvalidHost
		}
		a.IP, a.Host, a.Unicode = ip, strings.ToLower(host), host
		return a, nil
	}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		host, a.Port = s[:i], s[i+1:]
		if !validPort(a.Port) {
			return a, errInvalidPort
		}
	}
	if host == "" {
		return a, errEmptyHost
	}
	if ipv4Pattern.MatchString(host) {
		ip := net.ParseIP(host)
		if ip == nil {
			return a, errInvalidHost
		}
		a.IP, a.Host, a.Unicode = ip, host, host
		return a, nil
	}
	ascii := host
	if !isASCII(host) {
		converted, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return a, errInvalidHost
		}
		ascii, a.IDN = converted, true
	}
	ascii = strings.ToLower(ascii)
	if len(ascii) > 253 || !hostnamePattern.MatchString(ascii) {
		return a, errInvalidHost
	}
	a.Host, a.Unicode = ascii, host
	if strings.Contains(ascii, "xn--") {
		a.IDN = true
		if u, err := idna.Lookup.ToUnicode(ascii); err == nil {
			a.Unicode = u
		}
	}
	return a, nil
}

func validPort(p string) bool {
	if !portPattern.MatchString(p) {
		return false
	}
	n, err := strconv.Atoi(p)
	return err == nil && n >= 1 && n <= 65535
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func (a authority) isLoopback() bool {
	if a.IP != nil {
		return a.IP.IsLoopback()
	}
	return a.Host == "localhost" || strings.HasSuffix(a.Host, ".localhost")
}

func (a authority) isUnspecified() bool {
	return a.IP != nil && a.IP.IsUnspecified()
}

// riskLevel is the coarse classification attached to DOMAIN_SECURITY_RISK.
func (a authority) riskLevel() string {
	switch {
	case a.isLoopback(), a.isUnspecified():
		return "low"
	case a.IP != nil && a.IP.IsPrivate():
		return "medium"
	}
	return ""
}

var devSuffixes = []string{".local", ".test", ".internal", ".localhost", ".invalid"}

func isDevHost(host string) bool {
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsUnspecified()
	}
	for _, s := range devSuffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

// suspiciousReason returns why host looks like a phishing domain, or "".
// Loopback and development hosts are reported separately and never match.
func suspiciousReason(host string) string {
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "" || isDevHost(host) {
		return ""
	}
	if net.ParseIP(host) != nil {
		return "bare IP address"
	}
	labels := strings.Split(host, ".")
	for i, label := range labels {
		if looksRandom(label) {
			return "long random-looking label"
		}
		if m := brandPattern.FindString(label); m != "" && (label != m || i != len(labels)-2) {
			return "impersonates " + m
		}
	}
	if m := phishingPattern.FindString(host); m != "" {
		return "phishing keyword " + m
	}
	return ""
}

func looksRandom(label string) bool {
	if len(label) >= 40 {
		return true
	}
	if len(label) < 25 {
		return false
	}
	digits := 0
	for _, r := range label {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 3
}

// hostMatches reports whether uriHost is domainHost or one of its
// subdomains. Single-label and IP domains only match exactly.
func hostMatches(uriHost, domainHost string) bool {
	uriHost, domainHost = strings.ToLower(uriHost), strings.ToLower(domainHost)
	if uriHost == domainHost {
		return true
	}
	if net.ParseIP(domainHost) != nil || strings.Count(domainHost, ".") < 1 {
		return false
	}
	return strings.HasSuffix(uriHost, "."+domainHost)
}
