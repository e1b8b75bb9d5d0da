// Package lexer implements the runtime's tokenizer:
// a buffered byte-stream reader, the token grammar, numeral and string
// scanning, long-bracket strings/comments, and scanner-side string
// anchoring against the collector in package gc.
package lexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/embergc/corevm/diag"
	"github.com/embergc/corevm/gc"
	"github.com/embergc/corevm/object"
)

// eof is the sentinel Lexer.ch takes once Reader returns no more
// bytes (llex.c's EOZ).
const eof = -1

// maxLineNumber bounds how many lines a single chunk may contain
// before increment overflows (llex.c's increment_line_number: "if
// (++linenumber >= MAX_INT) lexerror(...)"). Using MaxInt32/2 rather
// than the full platform int range keeps the check meaningful even if
// Token.Pos.Line is later narrowed.
const maxLineNumber = 1<<30 - 1

// Reader supplies the lexer's raw bytes, one chunk at a time, as a
// byte-stream reader function plus opaque user data. Returning (nil,
// nil) or an empty slice signals end of input.
type Reader func(userdata any) ([]byte, error)

// Lexer tokenizes one source chunk. It depends on package object (for
// TString/Value) and package gc (to allocate and anchor the strings it
// produces).
type Lexer struct {
	read     Reader
	userdata any
	chunk    []byte
	chunkPos int

	ch   int // current character, eof at end of stream
	line int
	col  int

	source string // chunk name, used in error messages

	gc      *gc.Collector
	strings *object.InternTable
	anchor  *object.Table // scanner-side string anchor
	seed    uint32
	log     *diag.Logger

	maxCodepoint int64 // \u{...} ceiling (config.LexerConfig.MaxCodepoint)

	buf []byte // scratch buffer for the token currently being scanned

	ahead     *Token // pending single-token lookahead
	lastLine  int
	pos       int // byte offset of l.ch, for Position.Offset
}

// New creates a Lexer reading from read/userdata. source names the
// chunk for error messages. maxCodepoint bounds \u{...} escapes
// (config.LexerConfig.MaxCodepoint).
func New(c *gc.Collector, strings *object.InternTable, log *diag.Logger, read Reader, userdata any, source string, maxCodepoint int64) *Lexer {
	if log == nil {
		log = diag.Discard()
	}
	l := &Lexer{
		read:         read,
		userdata:     userdata,
		line:         1,
		col:          0, // the advance below moves onto column 1
		source:       source,
		gc:           c,
		strings:      strings,
		seed:         c.Seed(),
		log:          log,
		maxCodepoint: maxCodepoint,
	}
	l.anchor = c.NewTable(0, 0)
	l.advance()
	return l
}

// NewFromString is a convenience constructor over an in-memory chunk,
// still routed through the collector for allocation and anchoring.
func NewFromString(c *gc.Collector, strings *object.InternTable, log *diag.Logger, source, input string, maxCodepoint int64) *Lexer {
	read := func(userdata any) ([]byte, error) {
		u := userdata.(*stringCursor)
		if u.done {
			return nil, nil
		}
		u.done = true
		return u.data, nil
	}
	return New(c, strings, log, read, &stringCursor{data: []byte(input)}, source, maxCodepoint)
}

type stringCursor struct {
	data []byte
	done bool
}

// ReleaseAnchor drops the scanner-side anchor table, letting the collector
// reclaim any of the lexer's strings that nothing else references.
func (l *Lexer) ReleaseAnchor() { l.anchor = nil }

// Line returns the current line number.
func (l *Lexer) Line() int { return l.line }

// ---------------------------------------------------------------------------
// Byte-stream plumbing (Zio-style: at most one byte of lookahead beyond
// the current character).
// ---------------------------------------------------------------------------

func (l *Lexer) getc() int {
	if l.chunkPos >= len(l.chunk) {
		if l.read == nil {
			return eof
		}
		chunk, err := l.read(l.userdata)
		if err != nil || len(chunk) == 0 {
			l.read = nil
			return eof
		}
		l.chunk = chunk
		l.chunkPos = 0
	}
	b := l.chunk[l.chunkPos]
	l.chunkPos++
	return int(b)
}

// advance reads the next byte into l.ch (llex.c's LexState::next).
func (l *Lexer) advance() {
	l.ch = l.getc()
	l.pos++
	l.col++
}

func (l *Lexer) save(b byte) { l.buf = append(l.buf, b) }

func (l *Lexer) saveAndAdvance() {
	l.save(byte(l.ch))
	l.advance()
}

func (l *Lexer) isNewline() bool { return l.ch == '\n' || l.ch == '\r' }

// checkNext1 consumes ch if it equals c, without saving it.
func (l *Lexer) checkNext1(c byte) bool {
	if l.ch == int(c) {
		l.advance()
		return true
	}
	return false
}

// checkNext2 consumes and saves ch if it is one of set's two bytes
// (llex.c's check_next2, used for exponent marks and their sign).
func (l *Lexer) checkNext2(set string) bool {
	if l.ch == int(set[0]) || l.ch == int(set[1]) {
		l.saveAndAdvance()
		return true
	}
	return false
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// incLine advances the line counter past a single newline sequence, any
// of \n, \r, \n\r, \r\n counting as one.
func (l *Lexer) incLine() error {
	old := l.ch
	l.advance()
	if l.isNewline() && l.ch != old {
		l.advance()
	}
	l.line++
	l.col = 1
	if l.line >= maxLineNumber {
		return l.errorf(0, "chunk has too many lines")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Lookahead and token anchoring
// ---------------------------------------------------------------------------

// Next consumes and returns the next token, draining a pending
// Lookahead first.
func (l *Lexer) Next() (Token, error) {
	if l.ahead != nil {
		t := *l.ahead
		l.ahead = nil
		l.lastLine = t.Pos.Line
		return t, nil
	}
	t, err := l.scan()
	l.lastLine = t.Pos.Line
	return t, err
}

// Lookahead peeks exactly one token ahead without consuming it.
// Calling Lookahead again before the pending token is drained by Next
// is an error.
func (l *Lexer) Lookahead() (Token, error) {
	if l.ahead != nil {
		return Token{}, l.errorf(0, "double lookahead")
	}
	t, err := l.scan()
	if err != nil {
		return t, err
	}
	l.ahead = &t
	return t, nil
}

// newString interns or allocates content and anchors it in the
// scanner's transient table so a concurrent incremental GC step cannot
// collect it before the parser picks it up.
func (l *Lexer) newString(content string) *object.TString {
	var s *object.TString
	if len(content) <= object.ShortStringLimit {
		s = l.gc.InternString(l.strings, content)
	} else {
		s = l.gc.NewLongString(content)
	}
	if l.anchor != nil {
		_ = l.anchor.Set(s.ToValue(), object.True, l.seed)
		l.gc.OnSetField(l.anchor, s.ToValue())
	}
	return s
}

func (l *Lexer) errorf(tokLine int, format string, args ...any) *SyntaxError {
	line := l.line
	if tokLine != 0 {
		line = tokLine
	}
	e := &SyntaxError{
		Source:  l.source,
		Line:    line,
		Token:   string(l.buf),
		Message: fmt.Sprintf(format, args...),
	}
	l.log.Debug("lexer error", "source", e.Source, "line", e.Line, "lastLine", l.lastLine, "msg", e.Message)
	return e
}

// ---------------------------------------------------------------------------
// Main scan loop (llex.c's llex)
// ---------------------------------------------------------------------------

func (l *Lexer) scan() (Token, error) {
	l.buf = l.buf[:0]
	for {
		pos := l.position()
		switch {
		case l.isNewline():
			if err := l.incLine(); err != nil {
				return Token{}, err
			}
			continue

		case l.ch == ' ' || l.ch == '\f' || l.ch == '\t' || l.ch == '\v':
			l.advance()
			continue

		case l.ch == '-':
			l.advance()
			if l.ch != '-' {
				return Token{Kind: Kind('-'), Pos: pos}, nil
			}
			l.advance()
			if l.ch == '[' {
				sep, ok := l.skipSep()
				l.buf = l.buf[:0]
				if ok && sep >= 2 {
					if _, err := l.readLongString(sep, pos, false); err != nil {
						return Token{}, err
					}
					l.buf = l.buf[:0]
					continue
				}
			}
			for !l.isNewline() && l.ch != eof {
				l.advance()
			}
			continue

		case l.ch == '[':
			sep, ok := l.skipSep()
			if ok && sep >= 2 {
				s, err := l.readLongString(sep, pos, true)
				if err != nil {
					return Token{}, err
				}
				return Token{Kind: KindString, Pos: pos, Str: s}, nil
			}
			if !ok {
				return Token{}, l.errorf(pos.Line, "invalid long string delimiter")
			}
			return Token{Kind: Kind('['), Pos: pos}, nil

		case l.ch == '=':
			l.advance()
			if l.checkNext1('=') {
				return Token{Kind: KindEq, Pos: pos}, nil
			}
			return Token{Kind: Kind('='), Pos: pos}, nil

		case l.ch == '<':
			l.advance()
			if l.checkNext1('=') {
				return Token{Kind: KindLE, Pos: pos}, nil
			}
			if l.checkNext1('<') {
				return Token{Kind: KindShl, Pos: pos}, nil
			}
			return Token{Kind: Kind('<'), Pos: pos}, nil

		case l.ch == '>':
			l.advance()
			if l.checkNext1('=') {
				return Token{Kind: KindGE, Pos: pos}, nil
			}
			if l.checkNext1('>') {
				return Token{Kind: KindShr, Pos: pos}, nil
			}
			return Token{Kind: Kind('>'), Pos: pos}, nil

		case l.ch == '/':
			l.advance()
			if l.checkNext1('/') {
				return Token{Kind: KindIDiv, Pos: pos}, nil
			}
			return Token{Kind: Kind('/'), Pos: pos}, nil

		case l.ch == '~':
			l.advance()
			if l.checkNext1('=') {
				return Token{Kind: KindNE, Pos: pos}, nil
			}
			return Token{Kind: Kind('~'), Pos: pos}, nil

		case l.ch == ':':
			l.advance()
			if l.checkNext1(':') {
				return Token{Kind: KindDbColon, Pos: pos}, nil
			}
			return Token{Kind: Kind(':'), Pos: pos}, nil

		case l.ch == '"' || l.ch == '\'':
			s, err := l.readString(l.ch, pos)
			if err != nil {
				return Token{}, err
			}
			return Token{Kind: KindString, Pos: pos, Str: s}, nil

		case l.ch == '.':
			l.saveAndAdvance()
			if l.checkNext1('.') {
				if l.checkNext1('.') {
					return Token{Kind: KindDots, Pos: pos}, nil
				}
				return Token{Kind: KindConcat, Pos: pos}, nil
			}
			if !isDigit(l.ch) {
				return Token{Kind: Kind('.'), Pos: pos}, nil
			}
			return l.readNumeral(pos)

		case isDigit(l.ch):
			return l.readNumeral(pos)

		case l.ch == eof:
			return Token{Kind: EOF, Pos: pos}, nil

		case isLetterStart(l.ch):
			for isLetterStart(l.ch) || isDigit(l.ch) {
				l.saveAndAdvance()
			}
			s := l.newString(string(l.buf))
			if kind, ok := ReservedIndex(s); ok {
				return Token{Kind: kind, Pos: pos, Str: s}, nil
			}
			return Token{Kind: KindName, Pos: pos, Str: s}, nil

		default:
			c := l.ch
			l.advance()
			return Token{Kind: Kind(c), Pos: pos}, nil
		}
	}
}

func isDigit(ch int) bool       { return ch >= '0' && ch <= '9' }
func isHexDigit(ch int) bool    { return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F') }
func isLetterStart(ch int) bool { return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') }
func isAlnum(ch int) bool       { return isLetterStart(ch) || isDigit(ch) }

// ---------------------------------------------------------------------------
// Numerals (llex.c's read_numeral)
// ---------------------------------------------------------------------------

// readNumeral scans a liberal superset of valid numerals, leaving
// rejection of ill-formed text to parseNumeral, per llex.c's comment
// that "read_numeral is quite liberal in what it accepts". The only
// subtlety: a sign is only
// consumed immediately after an exponent mark, so "0xe+1" tokenizes as
// integer 14 followed by '+': in hex form 'e'
// is an ordinary hex digit, and the exponent mark is 'p'/'P', not 'e'.
func (l *Lexer) readNumeral(pos Position) (Token, error) {
	expo := "Ee"
	first := l.ch
	l.saveAndAdvance()
	isHex := first == '0' && l.checkNext2("xX")
	if isHex {
		expo = "Pp"
	}
	for {
		if l.checkNext2(expo) {
			l.checkNext2("-+")
		} else if (isHex && isHexDigit(l.ch)) || (!isHex && isDigit(l.ch)) || l.ch == '.' {
			l.saveAndAdvance()
		} else {
			break
		}
	}
	if isAlnum(l.ch) {
		l.saveAndAdvance() // force an error below, matching llex.c
	}
	return l.parseNumeral(string(l.buf), pos)
}

// parseNumeral classifies the scanned text as integer iff it has no
// '.', no decimal e/E (hex p/P doesn't count), and fits in i64;
// otherwise float. A decimal integer literal that overflows i64 falls
// back to float, matching llex.c's luaO_str2num rather than raising an
// error.
func (l *Lexer) parseNumeral(text string, pos Position) (Token, error) {
	lower := strings.ToLower(text)
	isHex := strings.HasPrefix(lower, "0x")
	hasDot := strings.Contains(text, ".")
	hasExpo := isHex && strings.ContainsAny(lower, "p") || !isHex && strings.ContainsAny(lower, "e")
	isFloat := hasDot || hasExpo

	if !isFloat {
		if isHex {
			u, err := strconv.ParseUint(lower[2:], 16, 64)
			if err != nil {
				return Token{}, l.numeralError(text, pos)
			}
			return Token{Kind: KindInt, Pos: pos, Int: int64(u)}, nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err == nil {
			return Token{Kind: KindInt, Pos: pos, Int: n}, nil
		}
		// overflow: fall through to float parsing below
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, l.numeralError(text, pos)
	}
	return Token{Kind: KindFloat, Pos: pos, Float: f}, nil
}

func (l *Lexer) numeralError(text string, pos Position) *SyntaxError {
	return &SyntaxError{Source: l.source, Line: pos.Line, Token: text, Message: "malformed number"}
}

// ---------------------------------------------------------------------------
// Long brackets (llex.c's skip_sep/read_long_string)
// ---------------------------------------------------------------------------

// skipSep reads a '[=*[' or ']=*]' sequence (the current character
// must be '[' or ']'), leaving the final bracket unread. It returns
// the level (number of '='s) + 2 and ok=true for a well-formed
// opener/closer, (1, true) for a single bare bracket, or (_, false)
// for an unterminated run of '='s.
func (l *Lexer) skipSep() (int, bool) {
	s := l.ch
	count := 0
	l.saveAndAdvance()
	for l.ch == '=' {
		l.saveAndAdvance()
		count++
	}
	if l.ch == s {
		return count + 2, true
	}
	if count == 0 {
		return 1, true
	}
	return 0, false
}

// readLongString scans the body of a long string or long comment
// opened by a sep-level bracket already consumed by skipSep. isString
// selects whether to keep the content (and anchor it) or discard it.
func (l *Lexer) readLongString(sep int, openPos Position, isString bool) (*object.TString, error) {
	l.saveAndAdvance() // skip the second '['
	if l.isNewline() {
		if err := l.incLine(); err != nil { // a leading newline right after the opener is dropped
			return nil, err
		}
	}
	for {
		switch {
		case l.ch == eof:
			what := "comment"
			if isString {
				what = "string"
			}
			return nil, &SyntaxError{Source: l.source, Line: openPos.Line,
				Message: fmt.Sprintf("unfinished long %s (starting at line %d)", what, openPos.Line)}
		case l.ch == ']':
			closeSep, ok := l.skipSep()
			if ok && closeSep == sep {
				l.saveAndAdvance() // skip the second ']'
				goto done
			}
		case l.isNewline():
			l.save('\n')
			if err := l.incLine(); err != nil {
				return nil, err
			}
			if !isString {
				l.buf = l.buf[:0]
			}
		default:
			if isString {
				l.saveAndAdvance()
			} else {
				l.advance()
			}
		}
	}
done:
	if !isString {
		return nil, nil
	}
	// buf holds "[==[" ... "]==]"; strip sep bytes off each end.
	content := string(l.buf[sep : len(l.buf)-sep])
	return l.newString(content), nil
}

// ---------------------------------------------------------------------------
// Short strings and escapes (llex.c's read_string)
// ---------------------------------------------------------------------------

func (l *Lexer) readString(delim int, pos Position) (*object.TString, error) {
	l.buf = l.buf[:0]
	l.advance() // skip opening delimiter, don't save it
	for l.ch != delim {
		switch {
		case l.ch == eof:
			return nil, l.errorf(pos.Line, "unfinished string")
		case l.isNewline():
			return nil, l.errorf(pos.Line, "unfinished string")
		case l.ch == '\\':
			if err := l.readEscape(pos); err != nil {
				return nil, err
			}
		default:
			l.saveAndAdvance()
		}
	}
	l.advance() // skip closing delimiter
	return l.newString(string(l.buf)), nil
}

// readEscape handles one backslash escape inside a short string,
// appending its decoded bytes to l.buf.
func (l *Lexer) readEscape(pos Position) error {
	l.advance() // skip '\\'
	switch l.ch {
	case 'a':
		l.save('\a')
		l.advance()
	case 'b':
		l.save('\b')
		l.advance()
	case 'f':
		l.save('\f')
		l.advance()
	case 'n':
		l.save('\n')
		l.advance()
	case 'r':
		l.save('\r')
		l.advance()
	case 't':
		l.save('\t')
		l.advance()
	case 'v':
		l.save('\v')
		l.advance()
	case '\\', '"', '\'':
		l.save(byte(l.ch))
		l.advance()
	case '\n', '\r':
		if err := l.incLine(); err != nil {
			return err
		}
		l.save('\n')
	case 'x':
		b, err := l.readHexEscape(pos)
		if err != nil {
			return err
		}
		l.save(b)
	case 'z':
		l.advance()
		for isSpace(l.ch) {
			if l.isNewline() {
				if err := l.incLine(); err != nil {
					return err
				}
			} else {
				l.advance()
			}
		}
	case 'u':
		if err := l.readUTF8Escape(pos); err != nil {
			return err
		}
	case eof:
		// let the outer loop re-observe eof and raise "unfinished string"
	default:
		if !isDigit(l.ch) {
			return l.errorf(pos.Line, "invalid escape sequence")
		}
		b, err := l.readDecimalEscape(pos)
		if err != nil {
			return err
		}
		l.save(b)
	}
	return nil
}

func isSpace(ch int) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func (l *Lexer) readHexEscape(pos Position) (byte, error) {
	l.advance() // skip 'x'
	hi, err := l.readHexDigit(pos)
	if err != nil {
		return 0, err
	}
	lo, err := l.readHexDigit(pos)
	if err != nil {
		return 0, err
	}
	return hi<<4 | lo, nil
}

// readHexDigit converts the current character as a hex digit and
// advances past it, leaving l.ch on whatever follows.
func (l *Lexer) readHexDigit(pos Position) (byte, error) {
	if !isHexDigit(l.ch) {
		return 0, l.errorf(pos.Line, "hexadecimal digit expected")
	}
	v := hexValue(l.ch)
	l.advance()
	return v, nil
}

func hexValue(ch int) byte {
	switch {
	case ch >= '0' && ch <= '9':
		return byte(ch - '0')
	case ch >= 'a' && ch <= 'f':
		return byte(ch-'a') + 10
	default:
		return byte(ch-'A') + 10
	}
}

// readDecimalEscape reads \ddd, up to three decimal digits, value at
// most 255 (llex.c's readdecesc).
func (l *Lexer) readDecimalEscape(pos Position) (byte, error) {
	r := 0
	for i := 0; i < 3 && isDigit(l.ch); i++ {
		r = 10*r + (l.ch - '0')
		l.advance()
	}
	if r > 255 {
		return 0, l.errorf(pos.Line, "decimal escape too large")
	}
	return byte(r), nil
}

// readUTF8Escape reads \u{XXX} and appends its extended-UTF-8 encoding
// to l.buf.
func (l *Lexer) readUTF8Escape(pos Position) error {
	l.advance() // skip 'u'
	if l.ch != '{' {
		return l.errorf(pos.Line, "missing '{'")
	}
	l.advance() // skip '{'
	if !isHexDigit(l.ch) {
		return l.errorf(pos.Line, "hexadecimal digit expected")
	}
	ceiling := l.maxCodepoint
	if ceiling <= 0 {
		ceiling = 0x7FFFFFFF
	}
	var r uint64
	for isHexDigit(l.ch) {
		if int64(r) > ceiling>>4 {
			return l.errorf(pos.Line, "UTF-8 value too large")
		}
		r = r<<4 + uint64(hexValue(l.ch))
		l.advance()
	}
	if l.ch != '}' {
		return l.errorf(pos.Line, "missing '}'")
	}
	l.advance() // skip '}'
	l.buf = append(l.buf, encodeExtendedUTF8(r)...)
	return nil
}
