package silabs

import (
	"context"
	"fmt"
	"time"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi"
	"github.com/chaz8081/gl-ble-driver/internal/ble"
	"github.com/chaz8081/gl-ble-driver/internal/driver"
	"github.com/chaz8081/gl-ble-driver/internal/firmware"
)

// UploadFirmware flashes a .gbl image through the UART DFU bootloader.
//
// The image is validated before the module is touched. Once the module
// has been rebooted into the bootloader it is always rebooted back into
// the application on return. A rejected chunk is logged and counted but
// does not stop the transfer; the finish command's status decides the
// outcome.
func (r *Radio) UploadFirmware(ctx context.Context, path string, progress func(ble.Progress)) (ble.UploadReport, error) {
	img, err := firmware.Load(path)
	if err != nil {
		return ble.UploadReport{}, fmt.Errorf("%w: %v", driver.ErrParameter, err)
	}

	release, err := r.acquire(ctx)
	if err != nil {
		return ble.UploadReport{}, err
	}
	defer release()

	chunks := firmware.Chunks(img.Data, r.opts.ChunkSize)
	report := ble.UploadReport{Bytes: img.Size(), Chunks: len(chunks), Digest: img.DigestHex()}
	r.log.Info("[DFU] starting upload", "path", img.Path, "bytes", report.Bytes,
		"chunks", report.Chunks, "blake2b", report.Digest)

	r.advReady = false
	if err := r.core.Events.Send(bgapi.SystemReset(1).Frame); err != nil {
		return report, fmt.Errorf("dfu: enter bootloader: %w", err)
	}
	defer func() {
		if err := r.core.Events.Send(bgapi.SystemReset(0).Frame); err != nil {
			r.log.Error("[DFU] reboot into application failed", "error", err)
		}
	}()

	if err := pause(ctx, r.opts.EnterDelay); err != nil {
		return report, err
	}
	if _, err := r.command(ctx, bgapi.DFUFlashSetAddress(0)); err != nil {
		return report, fmt.Errorf("dfu: set flash address: %w", err)
	}
	if err := pause(ctx, r.opts.EnterDelay); err != nil {
		return report, err
	}

	sent := 0
	for i, chunk := range chunks {
		cmd, err := bgapi.DFUFlashUpload(chunk)
		if err == nil {
			_, err = r.command(ctx, cmd)
		}
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.FailedChunks++
			r.log.Warn("[DFU] chunk rejected, continuing", "chunk", i+1, "of", len(chunks), "error", err)
		}
		sent += len(chunk)
		if progress != nil {
			progress(ble.Progress{Chunk: i + 1, Chunks: len(chunks), Sent: sent, Total: report.Bytes})
		}
		if err := pause(ctx, r.opts.ChunkDelay); err != nil {
			return report, err
		}
	}

	if err := pause(ctx, r.opts.FinishDelay); err != nil {
		return report, err
	}
	_, finishErr := r.command(ctx, bgapi.DFUFlashUploadFinish())
	if err := pause(ctx, r.opts.FinishDelay); err != nil && finishErr == nil {
		finishErr = err
	}
	if finishErr != nil {
		r.log.Error("[DFU] upload failed", "failed_chunks", report.FailedChunks, "error", finishErr)
		return report, fmt.Errorf("dfu: finish: %w", finishErr)
	}

	r.log.Info("[DFU] upload complete", "bytes", report.Bytes, "failed_chunks", report.FailedChunks)
	return report, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
