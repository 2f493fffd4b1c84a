package internal

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"policyqa/types"
)

// Config holds loader settings, populated from the environment by cmd.
type Config struct {
	MonitoringTime time.Duration
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	ChunkSize      int
	ChunkOverlap   int
	ConverterURL   string
	CoreURL        string
}

// DocumentLoader watches a source directory, converts dropped files into
// chunk records and posts them to the core ingestion endpoint. It is an
// external collaborator of the core: the pipeline never depends on it.
type DocumentLoader struct {
	cfg    Config
	ingest *IngestClient

	FileMutex       sync.Mutex
	FileFirstSeen   map[string]time.Time
	FilesProcessing map[string]bool
}

func NewDocumentLoader(cfg Config) *DocumentLoader {
	createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir)
	return &DocumentLoader{
		cfg:             cfg,
		ingest:          NewIngestClient(cfg.CoreURL),
		FileFirstSeen:   make(map[string]time.Time),
		FilesProcessing: make(map[string]bool),
	}
}

// WatchFiles polls the source directory and sends files that stopped
// changing to fileChan.
func (l *DocumentLoader) WatchFiles(ctx context.Context, fileChan chan<- string) {
	fmt.Printf("Start monitoring folder: %s\n", l.cfg.SourceDir)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer fmt.Println("File watcher stopped and cleaned up")

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping file watcher (context cancelled)...")
			return
		case <-ticker.C:
			files, err := os.ReadDir(l.cfg.SourceDir)
			if err != nil {
				fmt.Printf("error while reading source directory: %s\n", err)
				continue
			}

			currentFiles := make(map[string]bool)

			for _, file := range files {
				if file.IsDir() {
					continue
				}

				filePath := filepath.Join(l.cfg.SourceDir, file.Name())
				currentFiles[filePath] = true

				l.FileMutex.Lock()
				if l.FilesProcessing[filePath] {
					l.FileMutex.Unlock()
					continue
				}
				if _, exists := l.FileFirstSeen[filePath]; !exists {
					l.FileFirstSeen[filePath] = time.Now()
					fmt.Printf("New file detected: %s\n", filePath)
					l.FileMutex.Unlock()
					continue
				}
				firstSeen := l.FileFirstSeen[filePath]
				l.FileMutex.Unlock()

				if time.Since(firstSeen) > l.cfg.MonitoringTime {
					l.FileMutex.Lock()
					l.FilesProcessing[filePath] = true
					l.FileMutex.Unlock()

					select {
					case fileChan <- filePath:
					case <-ctx.Done():
						return
					}
				}
			}

			// Drop tracking state for files that disappeared from the
			// directory.
			l.FileMutex.Lock()
			for filePath := range l.FileFirstSeen {
				if !currentFiles[filePath] {
					delete(l.FileFirstSeen, filePath)
					delete(l.FilesProcessing, filePath)
				}
			}
			l.FileMutex.Unlock()
		}
	}
}

// ProcessFiles converts and ingests every file arriving on fileChan.
func (l *DocumentLoader) ProcessFiles(ctx context.Context, fileChan <-chan string) {
	defer fmt.Println("File processor stopped and cleaned up")

	for {
		select {
		case <-ctx.Done():
			fmt.Println("Stopping file processor (context cancelled)...")
			return
		case filePath, ok := <-fileChan:
			if !ok {
				fmt.Println("File channel closed, stopping processor...")
				return
			}

			fmt.Printf("Processing file: %s\n", filePath)
			err := l.processFile(ctx, filePath)
			if err != nil {
				fmt.Printf("Error processing file %s: %v\n", filePath, err)
				l.MoveToArchive(filePath, 1)
			} else {
				l.MoveToArchive(filePath, 0)
			}

			l.FileMutex.Lock()
			delete(l.FilesProcessing, filePath)
			delete(l.FileFirstSeen, filePath)
			l.FileMutex.Unlock()
		}
	}
}

func (l *DocumentLoader) processFile(ctx context.Context, filePath string) error {
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	text, err := l.extractText(ctx, filePath)
	if err != nil {
		return err
	}

	fileName := filepath.Base(filePath)
	chunks := splitByChunks(text, fileName, l.cfg.ChunkSize, l.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return fmt.Errorf("no text extracted from %s", filePath)
	}

	docRef := documentRef(filePath)
	if err := l.ingest.Ingest(ctx, docRef, chunks); err != nil {
		return err
	}

	log.Printf("[LOADER] Ingested %s: %d chunks (ref %s)", fileName, len(chunks), docRef)
	return nil
}

func (l *DocumentLoader) extractText(ctx context.Context, filePath string) (string, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		if err := CropHeaderFooter(filePath, filePath, 46, 57); err != nil {
			return "", err
		}
		return ConvertPDFToText(ctx, l.cfg.ConverterURL, filePath)
	case ".txt", ".md":
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(filePath))
	}
}

// splitByChunks word-chunks text with overlap. Chunk ids are deterministic
// (<file>:<idx>) so re-dropping the same file is rejected by the core as a
// duplicate instead of silently duplicating clauses.
func splitByChunks(text, fileName string, chunkSize, overlap int) []types.Chunk {
	words := strings.Fields(text)
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}

	var chunks []types.Chunk
	idx := 0
	for i := 0; i < len(words); i += chunkSize - overlap {
		end := i + chunkSize
		if end > len(words) {
			end = len(words)
		}

		content := strings.Join(words[i:end], " ")
		if strings.TrimSpace(content) == "" {
			continue
		}

		chunks = append(chunks, types.Chunk{
			ID:     fmt.Sprintf("%s:%d", fileName, idx),
			Text:   content,
			Source: fileName,
			Offset: i,
		})
		idx++

		if end == len(words) {
			break
		}
	}
	return chunks
}

func documentRef(filePath string) string {
	hash := md5.Sum([]byte(filepath.Base(filePath)))
	return fmt.Sprintf("%x", hash)
}

func (l *DocumentLoader) MoveToArchive(filePath string, fileState int) {
	var state string
	switch fileState {
	case 1:
		state = l.cfg.BadDir
	default:
		state = l.cfg.ArchiveDir
	}

	currentDate := time.Now().Format("2006-01-02")
	destDir := filepath.Join(state, currentDate)

	if _, err := os.Stat(destDir); os.IsNotExist(err) {
		if err := os.MkdirAll(destDir, 0755); err != nil {
			fmt.Printf("error creating directory: %s\n", err)
			return
		}
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))

	counter := 1
	for {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(destPath)
		baseName := strings.TrimSuffix(filepath.Base(destPath), ext)
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
		counter++
	}

	in, err := os.Open(filePath)
	if err != nil {
		fmt.Printf("error open file: %s\n", err)
		return
	}
	defer in.Close()

	out, err := os.Create(destPath)
	if err != nil {
		fmt.Printf("error create file: %s\n", err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		fmt.Printf("error moving file to archive: %s\n", err)
		return
	}

	fmt.Printf("File moved to archive: %s\n", destPath)
	in.Close()
	os.Remove(filePath)
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
