package cmd

import (
	"context"
	"fmt"
	"log"

	"melodizr/config"
	"melodizr/core/convert"
	"melodizr/model"

	"github.com/spf13/cobra"
)

var (
	convertMode       string
	convertInstrument string
	convertPrompt     string
	convertKey        string
	convertPreset     string
	convertBPM        int
	convertUserID     int64
)

var convertCmd = &cobra.Command{
	Use:   "convert <audio-file>",
	Short: "Convert a recording from the command line",
	Long:  `Send a local audio file to the conversion gateway and save the converted track, without going through the recording flow.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		client := convert.NewClient(cfg.MelodizrAPIURL, cfg.TrackDir)

		req := model.ConversionRequest{
			Mode:             model.ConversionMode(convertMode),
			TargetInstrument: model.InstrumentType(convertInstrument),
			StylePrompt:      convertPrompt,
			KeyHint:          convertKey,
			TunePreset:       model.TunePreset(convertPreset),
			BPM:              model.ClampBPM(convertBPM),
			AudioPath:        args[0],
		}

		path, err := client.Convert(context.Background(), convertUserID, req)
		if err != nil {
			log.Fatalf("Conversion failed: %v", err)
		}
		fmt.Printf("Converted audio saved to %s\n", path)
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertMode, "mode", "m", string(model.ModeInstrument), "Conversion mode: instrument or tune")
	convertCmd.Flags().StringVarP(&convertInstrument, "instrument", "i", string(model.InstrumentDrum), "Target instrument for instrument mode")
	convertCmd.Flags().StringVar(&convertPrompt, "prompt", "", "Free-text style prompt for instrument mode")
	convertCmd.Flags().StringVarP(&convertKey, "key", "k", model.KeyHintAuto, "Key hint for tune mode, or auto")
	convertCmd.Flags().StringVar(&convertPreset, "preset", string(model.TuneNatural), "Tune preset: natural, classic or hard")
	convertCmd.Flags().IntVarP(&convertBPM, "bpm", "b", 120, "Session tempo")
	convertCmd.Flags().Int64VarP(&convertUserID, "user", "u", 1, "User ID sent to the gateway")
}
