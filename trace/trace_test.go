package trace_test

import (
	"bytes"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedirect/modemd/trace"
)

type fakePort struct {
	toRead  [][]byte
	written [][]byte
	cancels int
	timeout time.Duration
}

func (f *fakePort) Read1() ([]byte, error) {
	if len(f.toRead) == 0 {
		return nil, nil
	}
	b := f.toRead[0]
	f.toRead = f.toRead[1:]
	return b, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakePort) CancelRead() { f.cancels++ }

func (f *fakePort) SetReadTimeout(d time.Duration) { f.timeout = d }

func TestNew(t *testing.T) {
	p := &fakePort{}
	b := bytes.Buffer{}
	l := log.New(&b, "", log.LstdFlags)

	tr := trace.New(p)
	assert.NotNil(t, tr)

	tr = trace.New(p, trace.WithLogger(l), trace.WithReadFormat("r: %v"))
	assert.NotNil(t, tr)
}

func TestRead1LogsReceivedByte(t *testing.T) {
	p := &fakePort{toRead: [][]byte{[]byte("o")}}
	b := bytes.Buffer{}
	l := log.New(&b, "", 0)
	tr := trace.New(p, trace.WithLogger(l))

	got, err := tr.Read1()
	require.NoError(t, err)
	assert.Equal(t, []byte("o"), got)
	assert.Equal(t, []byte("r: o\n"), b.Bytes())
}

func TestRead1TimeoutIsNotLogged(t *testing.T) {
	p := &fakePort{}
	b := bytes.Buffer{}
	l := log.New(&b, "", 0)
	tr := trace.New(p, trace.WithLogger(l))

	got, err := tr.Read1()
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, b.Bytes())
}

func TestWriteLogsBytes(t *testing.T) {
	p := &fakePort{}
	b := bytes.Buffer{}
	l := log.New(&b, "", 0)
	tr := trace.New(p, trace.WithLogger(l))

	n, err := tr.Write([]byte("two"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte("w: two\n"), b.Bytes())
	assert.Equal(t, [][]byte{[]byte("two")}, p.written)
}

func TestReadFormat(t *testing.T) {
	p := &fakePort{toRead: [][]byte{[]byte("o")}}
	b := bytes.Buffer{}
	l := log.New(&b, "", 0)
	tr := trace.New(p, trace.WithLogger(l), trace.WithReadFormat("R: %v"))

	_, err := tr.Read1()
	require.NoError(t, err)
	assert.Equal(t, []byte("R: [111]\n"), b.Bytes())
}

func TestWriteFormat(t *testing.T) {
	p := &fakePort{}
	b := bytes.Buffer{}
	l := log.New(&b, "", 0)
	tr := trace.New(p, trace.WithLogger(l), trace.WithWriteFormat("W: %v"))

	_, err := tr.Write([]byte("two"))
	require.NoError(t, err)
	assert.Equal(t, []byte("W: [116 119 111]\n"), b.Bytes())
}

func TestCancelReadAndSetReadTimeoutPassThrough(t *testing.T) {
	p := &fakePort{}
	tr := trace.New(p)
	tr.CancelRead()
	tr.SetReadTimeout(5 * time.Second)
	assert.Equal(t, 1, p.cancels)
	assert.Equal(t, 5*time.Second, p.timeout)
}
