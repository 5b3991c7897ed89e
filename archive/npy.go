package archive

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// writeNPYHeader writes the NumPy .npy (v1.0) header for a one-dimensional
// array of count elements of type descr to w: a complex64 or uint32
// vector, which is all the array-shaped fields a minute archive carries.
func writeNPYHeader(w io.Writer, descr string, count int) error {
	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%d,), }", descr, count)

	const prefixLen = 10 // magic(6) + version(2) + headerLen(2)
	total := prefixLen + len(header) + 1
	pad := (64 - total%64) % 64
	for i := 0; i < pad; i++ {
		header += " "
	}
	header += "\n"

	if _, err := w.Write([]byte("\x93NUMPY\x01\x00")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	_, err := io.WriteString(w, header)
	return err
}

func encodeComplex64NPY(samples []complex64) []byte {
	var buf bytes.Buffer
	writeNPYHeader(&buf, "<c8", len(samples))
	for _, s := range samples {
		binary.Write(&buf, binary.LittleEndian, real(s))
		binary.Write(&buf, binary.LittleEndian, imag(s))
	}
	return buf.Bytes()
}

func encodeUint32NPY(vals []uint32) []byte {
	var buf bytes.Buffer
	writeNPYHeader(&buf, "<u4", len(vals))
	for _, v := range vals {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func decodeComplex64NPY(data []byte) ([]complex64, error) {
	off, count, err := npyDataOffset(data, 8)
	if err != nil {
		return nil, err
	}
	out := make([]complex64, count)
	r := bytes.NewReader(data[off:])
	for i := range out {
		var re, im float32
		if err := binary.Read(r, binary.LittleEndian, &re); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &im); err != nil {
			return nil, err
		}
		out[i] = complex(re, im)
	}
	return out, nil
}

func decodeUint32NPY(data []byte) ([]uint32, error) {
	off, count, err := npyDataOffset(data, 4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	r := bytes.NewReader(data[off:])
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func npyDataOffset(data []byte, elemSize int) (offset int, count int, err error) {
	if len(data) < 10 || string(data[:6]) != "\x93NUMPY" {
		return 0, 0, fmt.Errorf("not a valid npy buffer")
	}
	headerLen := int(binary.LittleEndian.Uint16(data[8:10]))
	dataStart := 10 + headerLen
	if dataStart > len(data) {
		return 0, 0, fmt.Errorf("npy header overruns buffer")
	}
	count = (len(data) - dataStart) / elemSize
	return dataStart, count, nil
}

// addZipFile writes name into the zip with store-level compression; these
// are already dense binary payloads, deflate buys little and costs CPU on
// every minute close.
func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
