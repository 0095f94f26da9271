package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/krfmo/gridsim/workload"
)

var (
	convertInPath    string
	convertOutPath   string
	convertJobIdx    int
	convertSubmitIdx int
	convertActualIdx int
	convertNumProc   int
	convertReqRunIdx int
	convertReqProc   int
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a Standard Workload Format trace (plain, gzip or zip) to canonical plain-text SWF",
	RunE: func(cmd *cobra.Command, args []string) error {
		cols := workload.ColumnLayout{
			JobID:            convertJobIdx,
			SubmitTime:       convertSubmitIdx,
			ActualRuntime:    convertActualIdx,
			NumProc:          convertNumProc,
			RequestedRuntime: convertReqRunIdx,
			RequestedNumProc: convertReqProc,
		}
		jobs, err := workload.ReadTrace(convertInPath, cols)
		if err != nil {
			return fmt.Errorf("reading %s: %w", convertInPath, err)
		}

		out := os.Stdout
		if convertOutPath != "" {
			f, err := os.Create(convertOutPath)
			if err != nil {
				return fmt.Errorf("creating %s: %w", convertOutPath, err)
			}
			defer f.Close()
			out = f
		}
		for _, j := range jobs {
			fmt.Fprintf(out, "%d %g -1 %g %d -1 -1 %d %g -1 -1 -1 -1 -1 -1 -1 -1 -1\n",
				j.JobID, j.SubmitTime, j.ActualRuntime, j.NumProc, j.RequestedNumProc, j.RequestedRuntime)
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertInPath, "in", "", "Input trace path (.swf, .swf.gz or .swf.zip)")
	convertCmd.Flags().StringVar(&convertOutPath, "out", "", "Output path (default stdout)")
	convertCmd.Flags().IntVar(&convertJobIdx, "col-job-id", workload.StandardColumns.JobID, "Column index of job id")
	convertCmd.Flags().IntVar(&convertSubmitIdx, "col-submit-time", workload.StandardColumns.SubmitTime, "Column index of submit time")
	convertCmd.Flags().IntVar(&convertActualIdx, "col-actual-runtime", workload.StandardColumns.ActualRuntime, "Column index of actual runtime")
	convertCmd.Flags().IntVar(&convertNumProc, "col-num-proc", workload.StandardColumns.NumProc, "Column index of allocated processor count")
	convertCmd.Flags().IntVar(&convertReqRunIdx, "col-requested-runtime", workload.StandardColumns.RequestedRuntime, "Column index of requested runtime")
	convertCmd.Flags().IntVar(&convertReqProc, "col-requested-num-proc", workload.StandardColumns.RequestedNumProc, "Column index of requested processor count")
	_ = convertCmd.MarkFlagRequired("in")
}
