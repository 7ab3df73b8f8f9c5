package zone

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"net"
	"net/netip"
	"os"
	"strings"
	"unicode"

	"go4.org/netipx"
)

// Context is the declaration the parser is currently inside.
type Context int

const (
	ContextNone Context = iota
	ContextNetwork
	ContextHost
	ContextCname
)

func (c Context) String() string {
	switch c {
	case ContextNetwork:
		return "network"
	case ContextHost:
		return "host"
	case ContextCname:
		return "cname"
	default:
		return "none"
	}
}

// Directive is a zone-definition keyword.
type Directive int

const (
	DirectiveNetwork Directive = iota
	DirectiveHost
	DirectiveName
	DirectiveMAC
	DirectiveComment
	DirectiveAlias
	DirectiveCname
	DirectiveTarget
)

var directives = map[string]Directive{
	"network": DirectiveNetwork,
	"host":    DirectiveHost,
	"name":    DirectiveName,
	"mac":     DirectiveMAC,
	"comment": DirectiveComment,
	"alias":   DirectiveAlias,
	"cname":   DirectiveCname,
	"target":  DirectiveTarget,
}

var handlers = [...]func(*Parser, string) error{
	DirectiveNetwork: (*Parser).parseNetwork,
	DirectiveHost:    (*Parser).parseHost,
	DirectiveName:    (*Parser).parseName,
	DirectiveMAC:     (*Parser).parseMAC,
	DirectiveComment: (*Parser).parseComment,
	DirectiveAlias:   (*Parser).parseAlias,
	DirectiveCname:   (*Parser).parseCname,
	DirectiveTarget:  (*Parser).parseTarget,
}

// Options configure name handling and comment syntax.
type Options struct {
	Domain        string   // appended to single-label names
	CommentMarker string   // starts a trailing comment; empty disables comments
	PoolPrefix    string   // expanded names with this prefix form DHCP ranges
	ReservedNames []string // host-name markers rewritten to <marker>-<ip>
}

// DefaultOptions returns the options used when a config leaves them unset.
func DefaultOptions(domain string) Options {
	return Options{
		Domain:        domain,
		CommentMarker: "#",
		PoolPrefix:    "dhcp",
		ReservedNames: []string{"dhcp", "reserved"},
	}
}

// cursor is the per-pass position of the parser in the tree.
type cursor struct {
	context      Context
	network      *Network
	addr         netip.Addr // current host
	prev         netip.Addr // host declared before addr
	pendingAlias string
	dhcpStart    netip.Addr
}

// Parser builds a State from zone-definition lines. Successive Parse calls
// add to the same State until Reset is called.
type Parser struct {
	opts   Options
	suffix string
	state  *State
	cur    cursor
}

// NewParser creates a parser with an empty State.
func NewParser(opts Options) *Parser {
	suffix := strings.ToLower(strings.TrimSuffix(opts.Domain, "."))
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	return &Parser{opts: opts, suffix: suffix, state: NewState()}
}

// State returns the tree built so far.
func (p *Parser) State() *State { return p.state }

// Reset discards the tree.
func (p *Parser) Reset() {
	p.state = NewState()
	p.cur = cursor{}
}

// Parse consumes lines until the sequence ends or a line fails.
func (p *Parser) Parse(lines iter.Seq[string]) error {
	return p.parse("", lines)
}

// ParseReader parses r line by line; name is used in error positions.
func (p *Parser) ParseReader(name string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lines := func(yield func(string) bool) {
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}
	if err := p.parse(name, lines); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return nil
}

// ParseFile parses the file at path.
func (p *Parser) ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening zone file %s: %w", path, err)
	}
	defer f.Close()
	return p.ParseReader(path, f)
}

func (p *Parser) parse(source string, lines iter.Seq[string]) error {
	p.cur = cursor{}
	lineNum, cnameLine := 0, 0

	for raw := range lines {
		lineNum++
		line := raw
		if p.opts.CommentMarker != "" {
			if i := strings.Index(line, p.opts.CommentMarker); i >= 0 {
				line = line[:i]
			}
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		keyword, arg := splitDirective(line)
		var err error
		if d, ok := directives[keyword]; ok {
			err = handlers[d](p, arg)
			if d == DirectiveCname {
				cnameLine = lineNum
			}
		} else {
			err = newError(ErrDirective, "invalid directive: %s", keyword)
		}
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				perr.Source = source
				perr.Line = lineNum
				perr.Directive = keyword
			}
			return err
		}
	}

	if p.cur.pendingAlias != "" {
		err := errDanglingCname(p.cur.pendingAlias)
		err.Source, err.Line, err.Directive = source, cnameLine, "cname"
		return err
	}
	p.closeRange()
	return nil
}

func errDanglingCname(alias string) *ParseError {
	return newError(ErrContext, "%s: cname has no target", alias)
}

func splitDirective(line string) (keyword, arg string) {
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}

// token returns arg as a single whitespace-free token.
func token(arg, what string) (string, error) {
	if arg == "" {
		return "", newError(ErrArgument, "no %s provided", what)
	}
	if strings.IndexFunc(arg, unicode.IsSpace) >= 0 {
		return "", newError(ErrArgument, "%s: expected a single %s", arg, what)
	}
	return arg, nil
}

func (p *Parser) requireContext(data string, allowed ...Context) error {
	for _, c := range allowed {
		if p.cur.context == c {
			return nil
		}
	}
	want := make([]string, 0, len(allowed))
	for _, c := range allowed {
		want = append(want, c.String())
	}
	return newError(ErrContext, "%s: current context is %s, but %s required",
		data, p.cur.context, strings.Join(want, " or "))
}

func (p *Parser) requireNetwork(data string) (*Network, error) {
	if p.cur.network == nil {
		return nil, newError(ErrMissingParent, "%s: unable to determine network parent", data)
	}
	return p.cur.network, nil
}

func (p *Parser) requireHost(data string) (*Host, error) {
	n, err := p.requireNetwork(data)
	if err != nil {
		return nil, err
	}
	if !p.cur.addr.IsValid() {
		return nil, newError(ErrMissingParent, "%s: unable to determine ip address parent", data)
	}
	return n.hosts[p.cur.addr], nil
}

// closeRange ends a pending DHCP range at the last-seen address.
func (p *Parser) closeRange() {
	if p.cur.dhcpStart.IsValid() {
		p.closeRangeAt(p.cur.addr)
	}
}

func (p *Parser) closeRangeAt(end netip.Addr) {
	p.cur.network.ranges = append(p.cur.network.ranges, Range{Start: p.cur.dhcpStart, End: end})
	p.cur.dhcpStart = netip.Addr{}
}

// parseNetwork opens a new network. A DHCP range still open in the previous
// network is closed at its last host rather than dropped.
func (p *Parser) parseNetwork(arg string) error {
	if p.cur.pendingAlias != "" {
		return errDanglingCname(p.cur.pendingAlias)
	}
	tok, err := token(arg, "network address")
	if err != nil {
		return err
	}
	prefix, err := netip.ParsePrefix(tok)
	if err != nil {
		return newError(ErrArgument, "%s: invalid network address", tok)
	}
	if prefix != prefix.Masked() {
		return newError(ErrArgument, "%s: host bits set, network is %s", tok, prefix.Masked())
	}
	if _, ok := p.state.Network(prefix.String()); ok {
		return newError(ErrDuplicate, "%s: this network is already defined", tok)
	}

	p.closeRange()
	p.cur = cursor{
		context: ContextNetwork,
		network: p.state.addNetwork(prefix),
	}
	return nil
}

func (p *Parser) parseHost(arg string) error {
	tok, err := token(arg, "host address")
	if err != nil {
		return err
	}
	n, err := p.requireNetwork(tok)
	if err != nil {
		return err
	}
	if err := p.requireContext(tok, ContextNetwork, ContextHost); err != nil {
		return err
	}
	addr, err := netip.ParseAddr(tok)
	if err != nil {
		return newError(ErrArgument, "%s: invalid host address", tok)
	}
	if _, ok := n.hosts[addr]; ok {
		return newError(ErrDuplicate, "%s: this host is already defined", tok)
	}
	if !n.Prefix().Contains(addr) {
		r := netipx.RangeOfPrefix(n.Prefix())
		return newError(ErrMembership, "%s: this host does not belong in the current network (%s, %s)",
			tok, n.CIDR(), r)
	}

	n.addHost(addr)
	p.cur.prev = p.cur.addr
	p.cur.addr = addr
	p.cur.context = ContextHost
	return nil
}

func (p *Parser) parseName(arg string) error {
	if err := p.requireContext(arg, ContextHost); err != nil {
		return err
	}
	tok, err := token(arg, "host name")
	if err != nil {
		return err
	}
	h, err := p.requireHost(tok)
	if err != nil {
		return err
	}
	name, err := p.expandName(tok, p.cur.addr, true)
	if err != nil {
		return err
	}
	if h.Name != "" {
		return newError(ErrDuplicate, "%s: %s already has a name", name, p.cur.addr)
	}
	if err := p.state.claimName(name, owner{kind: ownerCanonical, of: p.cur.addr.String()}); err != nil {
		return err
	}

	pool := p.isPool(name)
	switch {
	case pool && !p.cur.dhcpStart.IsValid():
		p.cur.dhcpStart = p.cur.addr
	case !pool && p.cur.dhcpStart.IsValid():
		p.closeRangeAt(p.cur.prev)
	}

	h.Name = name
	return nil
}

func (p *Parser) parseMAC(arg string) error {
	if err := p.requireContext(arg, ContextHost); err != nil {
		return err
	}
	tok, err := token(arg, "mac address")
	if err != nil {
		return err
	}
	h, err := p.requireHost(tok)
	if err != nil {
		return err
	}
	if h.Name == "" {
		return newError(ErrOrdering, "%s: hostname must be specified before mac address", p.cur.addr)
	}
	if p.isPool(h.Name) {
		return newError(ErrArgument, "%s: DHCP hosts cannot have a static mac address assigned", p.cur.addr)
	}
	if h.MAC != "" {
		return newError(ErrDuplicate, "%s: there is already a mac address for this host", p.cur.addr)
	}
	hw, err := net.ParseMAC(tok)
	if err != nil {
		return newError(ErrArgument, "%s: invalid mac address", tok)
	}
	h.MAC = strings.ToUpper(hw.String())
	return nil
}

func (p *Parser) parseComment(arg string) error {
	if err := p.requireContext(arg, ContextHost); err != nil {
		return err
	}
	if arg == "" {
		return newError(ErrArgument, "no comment provided")
	}
	h, err := p.requireHost(arg)
	if err != nil {
		return err
	}
	if h.Name == "" {
		return newError(ErrOrdering, "%s: hostname must be specified before comment", p.cur.addr)
	}
	if h.Comment != "" {
		return newError(ErrDuplicate, "%s: there is already a comment for this host", p.cur.addr)
	}
	h.Comment = arg
	return nil
}

func (p *Parser) parseAlias(arg string) error {
	if err := p.requireContext(arg, ContextHost); err != nil {
		return err
	}
	tok, err := token(arg, "alias")
	if err != nil {
		return err
	}
	h, err := p.requireHost(tok)
	if err != nil {
		return err
	}
	if h.Name == "" {
		return newError(ErrOrdering, "%s: there is no canonical name for this alias", tok)
	}
	alias, err := p.expandName(tok, p.cur.addr, false)
	if err != nil {
		return err
	}
	if err := p.state.claimName(alias, owner{kind: ownerAlias, of: h.Name}); err != nil {
		return err
	}
	h.Aliases = append(h.Aliases, alias)
	return nil
}

func (p *Parser) parseCname(arg string) error {
	if p.cur.pendingAlias != "" {
		return errDanglingCname(p.cur.pendingAlias)
	}
	tok, err := token(arg, "alias")
	if err != nil {
		return err
	}
	alias, err := p.expandName(tok, netip.Addr{}, false)
	if err != nil {
		return err
	}
	if err := p.state.checkName(alias); err != nil {
		return err
	}
	p.cur.pendingAlias = alias
	p.cur.context = ContextCname
	return nil
}

func (p *Parser) parseTarget(arg string) error {
	if err := p.requireContext(arg, ContextCname); err != nil {
		return err
	}
	tok, err := token(arg, "target")
	if err != nil {
		return err
	}
	target, err := p.expandName(tok, netip.Addr{}, false)
	if err != nil {
		return err
	}
	alias := p.cur.pendingAlias
	if target == alias {
		return newError(ErrArgument, "%s: alias cannot point at itself", alias)
	}
	if err := p.state.claimName(alias, owner{kind: ownerCname, of: target}); err != nil {
		return err
	}
	p.state.addCname(target, alias)
	p.cur.pendingAlias = ""
	p.cur.context = ContextNone
	return nil
}
