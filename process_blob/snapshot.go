package process_blob

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"memrelay/process"
	"memrelay/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "snapshot"))

type snapshotMetadata struct {
	PID     process.ProcessID                       `json:"pid"`
	Name    string                                  `json:"name"`
	Modules map[string]process.ProcessMemoryAddress `json:"modules"`
}

func blobFilename(dirname string, address uint64, size uint) string {
	return filepath.Join(dirname, fmt.Sprintf("blob_0x%x_%d.bin", address, size))
}

// Save writes the image to a directory: metadata.json, process_memory_map.json
// and one blob_0x<addr>_<size>.bin per region
func (img *Image) Save(dirname string) error {
	if err := os.MkdirAll(dirname, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	img.mu.Lock()
	metadata := snapshotMetadata{
		PID:     img.pid,
		Name:    img.name,
		Modules: make(map[string]process.ProcessMemoryAddress, len(img.modules)),
	}
	for name, base := range img.modules {
		metadata.Modules[name] = base
	}
	img.mu.Unlock()

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, "metadata.json"), metadataJSON, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	mm := img.MemoryMap()
	memoryMapJSON, err := json.MarshalIndent(mm, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal memory map: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, "process_memory_map.json"), memoryMapJSON, 0644); err != nil {
		return fmt.Errorf("failed to write memory map file: %w", err)
	}

	for _, region := range mm {
		data, err := img.Peek(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size))
		if err != nil {
			return fmt.Errorf("failed to read region 0x%x: %w", region.Address, err)
		}
		if err := os.WriteFile(blobFilename(dirname, region.Address, region.Size), data, 0644); err != nil {
			return fmt.Errorf("failed to write memory file for region 0x%x: %w", region.Address, err)
		}
	}

	log.Infoln("Snapshot saved to", dirname, "with", len(mm), "regions")
	return nil
}

// LoadImage reads a directory written by Save
func LoadImage(dirname string) (*Image, error) {
	metadataBytes, err := os.ReadFile(filepath.Join(dirname, "metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata snapshotMetadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	mmBytes, err := os.ReadFile(filepath.Join(dirname, "process_memory_map.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}

	var mm []memory_map.MemoryMapItem
	if err := json.Unmarshal(mmBytes, &mm); err != nil {
		return nil, fmt.Errorf("failed to unmarshal memory map: %w", err)
	}

	img := NewImage(metadata.PID, metadata.Name)
	for name, base := range metadata.Modules {
		img.AddModule(name, base)
	}

	for _, region := range mm {
		filename := blobFilename(dirname, region.Address, region.Size)
		data, err := os.ReadFile(filename)
		if os.IsNotExist(err) {
			// region was listed but not captured
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read blob %s: %w", filename, err)
		}

		perms := region.Perms
		if perms == "" {
			perms = "rw-p"
		}
		if err := img.MapPerms(process.ProcessMemoryAddress(region.Address), data, perms); err != nil {
			return nil, err
		}
	}

	log.Infoln("Snapshot loaded from", dirname, "for", metadata.Name, "pid", metadata.PID)
	return img, nil
}

// OpenSnapshot is a ProviderOpener for "-device snapshot -path <dir>"
func OpenSnapshot(args []string) (process.AccessProvider, error) {
	var path string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-path" && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-path="):
			path = strings.TrimPrefix(args[i], "-path=")
		}
	}

	if path == "" {
		return nil, fmt.Errorf("snapshot device requires -path: %w", process.ErrSessionInitFailed)
	}

	img, err := LoadImage(path)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, process.ErrSessionInitFailed)
	}
	return img, nil
}
