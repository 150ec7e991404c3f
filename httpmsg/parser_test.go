package httpmsg

import "testing"

func feedAll(t *testing.T, p *Parser, chunks []string) Outcome {
	t.Helper()
	var last Outcome
	for _, c := range chunks {
		var err error
		last, err = p.Feed([]byte(c))
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if last.Failed {
			return last
		}
		if last.Complete {
			return last
		}
	}
	return last
}

func TestParserRequestSimple(t *testing.T) {
	p := NewParser(Request, 0)
	out := feedAll(t, p, []string{"GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"})
	if !out.Complete {
		t.Fatalf("expected Complete, got %+v", out)
	}
	m := p.Message()
	if m.Method != "GET" || m.Target != "/index.html" {
		t.Fatalf("unexpected request line: %+v", m)
	}
	if host, ok := m.Header.Get("Host"); !ok || host != "example.com" {
		t.Fatalf("unexpected Host header: %q ok=%v", host, ok)
	}
	if m.TargetForm != OriginForm {
		t.Fatalf("expected OriginForm, got %v", m.TargetForm)
	}
}

func TestParserRequestSplitAcrossFeeds(t *testing.T) {
	p := NewParser(Request, 0)
	out := feedAll(t, p, []string{
		"GET / HTTP/1.1\r\nHo",
		"st: example.com\r\n",
		"\r\n",
	})
	if !out.Complete {
		t.Fatalf("expected Complete after split feeds, got %+v", out)
	}
}

func TestParserAbsoluteFormTarget(t *testing.T) {
	p := NewParser(Request, 0)
	out := feedAll(t, p, []string{"GET http://example.com/path HTTP/1.1\r\nHost: example.com\r\n\r\n"})
	if !out.Complete {
		t.Fatalf("expected Complete, got %+v", out)
	}
	if p.Message().TargetForm != AbsoluteForm {
		t.Fatalf("expected AbsoluteForm, got %v", p.Message().TargetForm)
	}
}

func TestParserConnectAuthorityForm(t *testing.T) {
	p := NewParser(Request, 0)
	out := feedAll(t, p, []string{"CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n"})
	if !out.Complete {
		t.Fatalf("expected Complete, got %+v", out)
	}
	if p.Message().TargetForm != AuthorityForm {
		t.Fatalf("expected AuthorityForm, got %v", p.Message().TargetForm)
	}
}

func TestParserContentLengthBody(t *testing.T) {
	p := NewParser(Request, 0)
	out := feedAll(t, p, []string{"POST /submit HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\n\r\nhello"})
	if !out.Complete {
		t.Fatalf("expected Complete, got %+v", out)
	}
	if string(p.Message().Body) != "hello" {
		t.Fatalf("unexpected body: %q", p.Message().Body)
	}
}

func TestParserChunkedBody(t *testing.T) {
	p := NewParser(Request, 0)
	raw := "POST /submit HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	out := feedAll(t, p, []string{raw})
	if !out.Complete {
		t.Fatalf("expected Complete, got %+v", out)
	}
	if string(p.Message().Body) != "hello world" {
		t.Fatalf("unexpected chunked body: %q", p.Message().Body)
	}
}

func TestParserChunkedBodySplitAcrossFeeds(t *testing.T) {
	p := NewParser(Request, 0)
	out := feedAll(t, p, []string{
		"POST /submit HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n",
		"5\r\nhel",
		"lo\r\n0\r\n",
		"\r\n",
	})
	if !out.Complete {
		t.Fatalf("expected Complete, got %+v", out)
	}
	if string(p.Message().Body) != "hello" {
		t.Fatalf("unexpected chunked body: %q", p.Message().Body)
	}
}

func TestParserResponseUntilEOF(t *testing.T) {
	p := NewParser(Response, 0)
	out := feedAll(t, p, []string{"HTTP/1.1 200 OK\r\nServer: x\r\n\r\nsome body bytes"})
	if out.Complete || out.Failed {
		t.Fatalf("expected NeedMore pending EOF, got %+v", out)
	}
	final := p.FeedEOF()
	if !final.Complete {
		t.Fatalf("expected Complete after FeedEOF, got %+v", final)
	}
	if string(p.Message().Body) != "some body bytes" {
		t.Fatalf("unexpected body: %q", p.Message().Body)
	}
}

func TestParserNoBodyResponse(t *testing.T) {
	p := NewParser(Response, 0)
	out := feedAll(t, p, []string{"HTTP/1.1 204 No Content\r\nServer: x\r\n\r\n"})
	if !out.Complete {
		t.Fatalf("expected Complete, got %+v", out)
	}
}

func TestParserMalformedRequestLine(t *testing.T) {
	p := NewParser(Request, 0)
	out := feedAll(t, p, []string{"GET\r\n\r\n"})
	if !out.Failed || out.FailKind != Malformed {
		t.Fatalf("expected Malformed failure, got %+v", out)
	}
}

func TestParserOversizeHeaders(t *testing.T) {
	p := NewParser(Request, 64)
	big := "GET / HTTP/1.1\r\nX-Long: " + string(make([]byte, 200)) + "\r\n\r\n"
	out := feedAll(t, p, []string{big})
	if !out.Failed || out.FailKind != TooLarge {
		t.Fatalf("expected TooLarge failure, got %+v", out)
	}
}

func TestParserObsFoldHeader(t *testing.T) {
	p := NewParser(Request, 0)
	out := feedAll(t, p, []string{"GET / HTTP/1.1\r\nX-Multi: first\r\n second\r\nHost: h\r\n\r\n"})
	if !out.Complete {
		t.Fatalf("expected Complete, got %+v", out)
	}
	v, ok := p.Message().Header.Get("X-Multi")
	if !ok || v != "first second" {
		t.Fatalf("unexpected folded header: %q ok=%v", v, ok)
	}
}

func TestHeaderDuplicatesPreserved(t *testing.T) {
	var h Header
	h.Add("X-A", "1")
	h.Add("X-A", "2")
	if got := h.Values("x-a"); len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("expected duplicate values preserved, got %v", got)
	}
}
