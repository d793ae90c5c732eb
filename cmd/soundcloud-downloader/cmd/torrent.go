package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const torrentPieceLength = 512 * 1024

var (
	announceURLs        []string
	torrentDir          string
	overwriteTorrent    bool
	generateMagnetLinks bool
)

var torrentCmd = &cobra.Command{
	Use:   "torrent",
	Short: "Generate a .torrent file for the output directory",
	Long: `Generates a BitTorrent metainfo (.torrent) file covering every file in the
output directory, so a downloaded catalog can be shared as one torrent. You must
specify at least one tracker announce URL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(announceURLs) == 0 {
			return errors.New("at least one --announce URL is required")
		}
		outDir := torrentDir
		if outDir == "" {
			outDir = filepath.Dir(filepath.Clean(globalConfig.OutputDir))
		}
		res, err := buildTorrent(globalConfig.OutputDir, announceURLs, outDir, overwriteTorrent, generateMagnetLinks)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d files, info hash %s)\n", res.Path, res.Files, res.InfoHash)
		if res.Magnet != "" {
			fmt.Fprintln(cmd.OutOrStdout(), res.Magnet)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(torrentCmd)

	torrentCmd.Flags().StringSliceVar(&announceURLs, "announce", []string{}, "Tracker announce URL (repeatable)")
	torrentCmd.Flags().StringVar(&torrentDir, "torrent-dir", "", "Directory to save the .torrent file (default: parent of the output directory)")
	torrentCmd.Flags().BoolVarP(&overwriteTorrent, "overwrite", "f", false, "Overwrite an existing .torrent file")
	torrentCmd.Flags().BoolVar(&generateMagnetLinks, "magnet-links", false, "Also write a -magnet.txt file containing the magnet link")
}

type torrentResult struct {
	Path     string
	InfoHash string
	Magnet   string
	Files    int
	Skipped  bool
}

// buildTorrent writes "<dir name>.torrent" for sourceDir into outDir and optionally a
// magnet link file next to it. An existing torrent is kept unless overwrite is set.
func buildTorrent(sourceDir string, trackers []string, outDir string, overwrite bool, withMagnet bool) (torrentResult, error) {
	var res torrentResult

	stat, err := os.Stat(sourceDir)
	if err != nil {
		return res, fmt.Errorf("error stating output directory %s: %w", sourceDir, err)
	}
	if !stat.IsDir() {
		return res, fmt.Errorf("output directory is not a directory: %s", sourceDir)
	}
	if tmps, _ := filepath.Glob(filepath.Join(sourceDir, "*.tmp")); len(tmps) > 0 {
		log.Warnf("%d leftover .tmp file(s) in %s will be included; run 'clean' first to drop them", len(tmps), sourceDir)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return res, fmt.Errorf("error creating torrent directory %s: %w", outDir, err)
	}
	res.Path = filepath.Join(outDir, stat.Name()+".torrent")

	if _, err := os.Stat(res.Path); err == nil {
		if !overwrite {
			log.WithField("path", res.Path).Info("Skipping existing torrent file (use --overwrite to replace)")
			res.Skipped = true
			return res, nil
		}
		log.WithField("path", res.Path).Warn("Overwriting existing torrent file")
	}

	mi := metainfo.MetaInfo{
		AnnounceList: make([][]string, len(trackers)),
		CreatedBy:    "go-soundcloud-download",
	}
	for i, tracker := range trackers {
		mi.AnnounceList[i] = []string{tracker}
	}
	if len(trackers) > 0 {
		mi.Announce = trackers[0]
	}

	info := metainfo.Info{PieceLength: torrentPieceLength}
	log.WithField("directory", sourceDir).Debug("Building torrent info...")
	if err := info.BuildFromFilePath(sourceDir); err != nil {
		return res, fmt.Errorf("error building torrent info from %s: %w", sourceDir, err)
	}
	res.Files = len(info.Files)
	mi.InfoBytes, err = bencode.Marshal(info)
	if err != nil {
		return res, fmt.Errorf("error marshaling torrent info: %w", err)
	}

	f, err := os.Create(res.Path)
	if err != nil {
		return res, fmt.Errorf("error creating torrent file %s: %w", res.Path, err)
	}
	if err := mi.Write(f); err != nil {
		f.Close()
		return res, fmt.Errorf("error writing torrent file %s: %w", res.Path, err)
	}
	if err := f.Close(); err != nil {
		return res, fmt.Errorf("error closing torrent file %s: %w", res.Path, err)
	}

	infoHash := mi.HashInfoBytes()
	res.InfoHash = infoHash.HexString()
	log.WithField("path", res.Path).Info("Successfully generated torrent file")

	if withMagnet {
		res.Magnet = magnetURI(res.InfoHash, stat.Name(), trackers)
		magnetPath := strings.TrimSuffix(res.Path, ".torrent") + "-magnet.txt"
		if err := os.WriteFile(magnetPath, []byte(res.Magnet), 0644); err != nil {
			// The torrent itself is fine; only the convenience file is missing.
			log.WithError(err).WithField("path", magnetPath).Error("Failed to write magnet link file")
		}
	}
	return res, nil
}

func magnetURI(infoHash, name string, trackers []string) string {
	parts := []string{
		"magnet:?xt=urn:btih:" + infoHash,
		"dn=" + url.QueryEscape(name),
	}
	for _, tracker := range trackers {
		parts = append(parts, "tr="+url.QueryEscape(tracker))
	}
	return strings.Join(parts, "&")
}
