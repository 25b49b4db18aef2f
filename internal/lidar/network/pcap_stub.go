//go:build !pcap
// +build !pcap

package network

import "errors"

var errPCAPDisabled = errors.New("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file reading")

// stubReader is used when PCAP support is compiled out.
type stubReader struct{}

func newPCAPReader() PCAPReader { return stubReader{} }

func (stubReader) Open(string) error                { return errPCAPDisabled }
func (stubReader) SetBPFFilter(string) error        { return errPCAPDisabled }
func (stubReader) NextPacket() (*PCAPPacket, error) { return nil, errPCAPDisabled }
func (stubReader) Close()                           {}
