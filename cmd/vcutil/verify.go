package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kamazee/vcutil/internal/codec"
	"github.com/kamazee/vcutil/internal/destination"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE...",
		Short: "Check that destination files parse and count their records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, path := range args {
				n, width, err := countRecords(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %d records, %d columns\n", path, n, width)
			}
			return nil
		},
	}
}

// countRecords reads every record after the header. Appended runs keep the
// header only at the top of the file, so every later record must have the
// header's width.
func countRecords(path string) (records, width int, err error) {
	r, err := destination.OpenRead(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	rd := codec.NewReader(r)
	header, err := rd.Next()
	if errors.Is(err, io.EOF) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, vcerrors.Wrap(err, vcerrors.ErrorTypeValidation, "unreadable header").
			WithDetail("file", path)
	}
	width = len(header)

	for {
		fields, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return records, width, nil
		}
		if err != nil {
			return records, width, vcerrors.Wrap(err, vcerrors.ErrorTypeValidation, "malformed record").
				WithDetail("file", path).
				WithDetail("record", records+1)
		}
		if len(fields) != width {
			return records, width, vcerrors.Newf(vcerrors.ErrorTypeValidation,
				"record has %d fields, header has %d", len(fields), width).
				WithDetail("file", path).
				WithDetail("record", records+1)
		}
		records++
	}
}
