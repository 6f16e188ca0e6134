package main

import (
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/emu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/ui"
)

func runHeadless(m *emu.Machine, frames int, pngPath, expectCRC string) error {
	if frames <= 0 {
		frames = 1
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		m.StepFrame()
	}
	dur := time.Since(start)

	fb := m.Framebuffer() // RGBA 160x144*4
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(frames) / dur.Seconds()

	log.Printf("headless: frames=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		frames, dur.Truncate(time.Millisecond), fps, crc)

	if pngPath != "" {
		if err := saveFramePNG(fb, 160, 144, pngPath); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", pngPath)
	}

	if expectCRC != "" {
		want := strings.TrimPrefix(strings.ToLower(expectCRC), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    make([]byte, len(pix)),
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	copy(img.Pix, pix)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

func main() {
	app := &cli.App{
		Name:  "gbemu",
		Usage: "a Game Boy / Game Boy Color emulator",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rom", Usage: "path to ROM (.gb/.gbc)"},
			&cli.StringFlag{Name: "bootrom", Usage: "optional DMG/CGB boot ROM"},
			&cli.IntFlag{Name: "scale", Value: 3, Usage: "window scale"},
			&cli.StringFlag{Name: "title", Value: "gbemu", Usage: "window title"},
			&cli.BoolFlag{Name: "trace", Usage: "CPU trace log"},
			&cli.BoolFlag{Name: "save", Value: true, Usage: "persist battery RAM to ROM.sav on exit and load on start"},
			&cli.BoolFlag{Name: "headless", Usage: "run without a window"},
			&cli.IntFlag{Name: "frames", Value: 300, Usage: "frames to run in headless mode"},
			&cli.StringFlag{Name: "outpng", Usage: "write last framebuffer to PNG at path"},
			&cli.StringFlag{Name: "expect", Usage: "assert framebuffer CRC32 (hex)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	romPath := ctx.String("rom")
	bootPath := ctx.String("bootrom")
	saveRAM := ctx.Bool("save")

	var rom []byte
	var err error
	if romPath != "" {
		rom, err = os.ReadFile(romPath)
		if err != nil {
			return fmt.Errorf("read %s: %w", romPath, err)
		}
	}
	boot, err := readOptional(bootPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", bootPath, err)
	}

	if len(rom) >= 0x150 {
		if h, err := cart.ParseHeader(rom); err == nil {
			log.Printf("ROM: %q type=%#02x rom=%dB ram=%dB", h.Title, h.CartType, h.ROMSizeBytes, h.RAMSizeBytes)
		}
	}

	emuCfg := emu.Config{
		Trace:    ctx.Bool("trace"),
		LimitFPS: false, // headless wants max speed
	}
	m := emu.New(emuCfg)
	if len(boot) >= 0x100 {
		m.SetBootROM(boot)
	}
	if len(rom) > 0 {
		if err := m.LoadCartridge(rom, boot); err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		// Mark ROM path on the machine so UI knows a game is loaded.
		if romPath != "" {
			if abs, err := filepath.Abs(romPath); err == nil {
				_ = m.LoadROMFromFile(abs) // reload through file path to set romPath
			} else {
				_ = m.LoadROMFromFile(romPath)
			}
		}
	}

	// Battery RAM: load .sav if present.
	var savPath string
	if saveRAM && romPath != "" {
		savPath = strings.TrimSuffix(romPath, ".gb") + ".sav"
		if data, err := os.ReadFile(savPath); err == nil {
			if m.LoadBattery(data) {
				log.Printf("loaded save RAM: %s (%d bytes)", savPath, len(data))
			}
		}
	}

	if ctx.Bool("headless") {
		if err := runHeadless(m, ctx.Int("frames"), ctx.String("outpng"), ctx.String("expect")); err != nil {
			return err
		}
		if saveRAM && savPath != "" {
			if data, ok := m.SaveBattery(); ok {
				if err := os.WriteFile(savPath, data, 0644); err == nil {
					log.Printf("wrote %s", savPath)
				}
			}
		}
		return nil
	}

	uiCfg := ui.Config{Title: ctx.String("title"), Scale: ctx.Int("scale")}
	app := ui.NewApp(uiCfg, m)
	if err := app.Run(); err != nil {
		return err
	}
	if s, ok := any(app).(interface{ SaveSettings() }); ok {
		s.SaveSettings()
	}
	// UI exit: save battery RAM if enabled (derive path from current ROM if needed).
	if saveRAM {
		outSav := savPath
		if outSav == "" && m.ROMPath() != "" && strings.HasSuffix(strings.ToLower(m.ROMPath()), ".gb") {
			outSav = strings.TrimSuffix(m.ROMPath(), ".gb") + ".sav"
		}
		if outSav != "" {
			if data, ok := m.SaveBattery(); ok {
				if err := os.WriteFile(outSav, data, 0644); err == nil {
					log.Printf("wrote %s", outSav)
				}
			}
		}
	}
	return nil
}
