/*
Copyright (c) YugaByte, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"
	"golang.org/x/term"

	"github.com/yugabyte/oraddl/src/archive"
	"github.com/yugabyte/oraddl/src/export"
	"github.com/yugabyte/oraddl/src/srcdb"
	"github.com/yugabyte/oraddl/src/utils"
)

// source struct will be populated by CLI arguments parsing
var source srcdb.Source

var (
	startClean       utils.BoolStr
	disablePb        utils.BoolStr
	archiveExport    utils.BoolStr
	archiveUploadURI string
)

var exportCmd = &cobra.Command{
	Use: "export",
	Short: "Export the DDL of all schema objects from the source Oracle database " +
		"into export-dir as .sql files",
	Long: `Export the DDL of tables, indexes, views, stored code and the other schema objects of the source Oracle database.
Each run creates a timestamped directory under the export-dir holding one .sql file per schema and object type.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		setExportFlagsDefaults()
		validateExportFlags()
		markFlagsRequired(cmd)
	},

	Run: func(cmd *cobra.Command, args []string) {
		if startClean {
			if !cleanPreviousExportRuns() {
				return
			}
		}
		exportDDL(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	registerCommonGlobalFlags(exportCmd)
	registerSourceDBConnFlags(exportCmd)

	BoolVar(exportCmd.Flags(), &startClean, "start-clean", false,
		"remove the outputs of previous export runs from the export-dir before start")

	BoolVar(exportCmd.Flags(), &disablePb, "disable-pb", false,
		"true - to disable progress bar during DDL export (default false)")

	BoolVar(exportCmd.Flags(), &archiveExport, "archive", false,
		"create a tar.gz archive of the run directory after the export completes")

	exportCmd.Flags().StringVar(&archiveUploadURI, "archive-upload-uri", "",
		"s3://bucket[/prefix] URI to upload the archive to (implies --archive)")
}

func registerSourceDBConnFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&source.Host, "source-db-host", "localhost",
		"source database server host")

	cmd.Flags().IntVar(&source.Port, "source-db-port", ORACLE_DEFAULT_PORT,
		"source database server port number")

	cmd.Flags().StringVar(&source.User, "source-db-user", "",
		"connect to source database as specified user")

	cmd.Flags().StringVar(&source.Password, "source-db-password", "",
		"password to connect to the source database; can also be supplied via the SOURCE_DB_PASSWORD environment variable or the interactive prompt")

	cmd.Flags().StringVar(&source.DBName, "source-db-name", "",
		"source database service name")

	cmd.Flags().StringVar(&source.DBSid, "oracle-db-sid", "",
		"Oracle System Identifier (SID) that you wish to use while exporting DDL from Oracle instances")

	cmd.Flags().StringVar(&source.TNSAlias, "oracle-tns-alias", "",
		"name of the TNS alias you wish to use to connect to the Oracle instance")

	cmd.Flags().StringVar(&source.Schema, "source-db-schema", "",
		"comma separated list of schemas to export (default: all non system schemas)")
}

// BoolVar defines a true/false/yes/no/1/0 flag backed by utils.BoolStr.
func BoolVar(flagSet *pflag.FlagSet, p *utils.BoolStr, name string, defaultValue bool, usage string) {
	*p = utils.BoolStr(defaultValue)
	flagSet.AddFlag(&pflag.Flag{
		Name:        name,
		Usage:       usage + "; accepted values (true, false, yes, no, 1, 0)",
		Value:       p,
		DefValue:    fmt.Sprintf("%t", defaultValue),
		NoOptDefVal: "true",
	})
}

func setExportFlagsDefaults() {
	source.DBType = ORACLE
}

func validateExportFlags() {
	validateExportDirFlag()
	validatePortRange()
	validateOracleParams()
	validateArchiveFlags()
}

func validatePortRange() {
	if source.Port < 0 || source.Port > 65535 {
		utils.ErrExit("Error: Invalid port number %d. Valid range is 0-65535", source.Port)
	}
}

func validateOracleParams() {
	// oracle stores object names in UPPER CASE by default(case insensitive)
	if source.Schema != "" {
		schemaNames := lo.Map(source.SchemaList(), func(schemaName string, _ int) string {
			if utils.IsQuotedString(schemaName) {
				return strings.Trim(schemaName, `"`)
			}
			return strings.ToUpper(schemaName)
		})
		source.Schema = strings.Join(schemaNames, ",")
	}

	if source.DBName == "" && source.DBSid == "" && source.TNSAlias == "" {
		utils.ErrExit(`Error: one flag required out of "oracle-tns-alias", "source-db-name", "oracle-db-sid" required.`)
	} else if source.TNSAlias != "" {
		//Priority order for Oracle: oracle-tns-alias > source-db-name > oracle-db-sid
		utils.PrintAndLog("Using TNS Alias for export.")
		source.DBName = ""
		source.DBSid = ""
	} else if source.DBName != "" {
		utils.PrintAndLog("Using DB Name for export.")
		source.DBSid = ""
	} else if source.DBSid != "" {
		utils.PrintAndLog("Using SID for export.")
	}
}

func validateArchiveFlags() {
	if archiveUploadURI == "" {
		return
	}
	if !strings.HasPrefix(archiveUploadURI, "s3://") {
		utils.ErrExit("Error: invalid --archive-upload-uri %q, only s3:// URIs are supported", archiveUploadURI)
	}
	if !archiveExport {
		log.Info("enabling --archive since --archive-upload-uri is set")
		archiveExport = true
	}
}

func markFlagsRequired(cmd *cobra.Command) {
	cmd.MarkFlagRequired("source-db-user")
}

func askPassword(destination string, user string, envVar string) (string, error) {
	if os.Getenv(envVar) != "" {
		return os.Getenv(envVar), nil
	}

	fmt.Printf("Password to connect to '%s' user of %s (In addition, you can also set the password using the environment variable '%s'): ",
		user, destination, envVar)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	fmt.Print("\n")
	return string(bytePassword), nil
}

// cleanPreviousExportRuns removes the run directories and archives left by
// earlier runs. Returns false when the operator declines.
func cleanPreviousExportRuns() bool {
	matches, err := filepath.Glob(filepath.Join(exportDir, export.EXPORT_ROOT_PREFIX+"*"))
	if err != nil {
		utils.ErrExit("Failed to list existing export runs in %q: %v", exportDir, err)
	}
	if len(matches) == 0 {
		utils.PrintAndLog("No previous export runs found in %q. Ignoring --start-clean flag.", exportDir)
		return true
	}

	proceed := utils.AskPrompt(fmt.Sprintf(
		"CAUTION: Using --start-clean will remove the %d previous export run(s) under %q. Do you want to proceed",
		len(matches), exportDir))
	if !proceed {
		utils.PrintAndLog("Aborting the export run.")
		return false
	}
	for _, match := range matches {
		log.Infof("removing %q", match)
		if err := os.RemoveAll(match); err != nil {
			utils.ErrExit("Failed to remove %q: %v", match, err)
		}
	}
	utils.PrintAndLog("Removed %d previous export run(s).", len(matches))
	return true
}

func exportDDL(ctx context.Context) {
	if source.Password == "" {
		var err error
		source.Password, err = askPassword("source DB", source.User, "SOURCE_DB_PASSWORD")
		if err != nil {
			utils.ErrExit("getting source db password: %v", err)
		}
	}

	utils.PrintAndLog("export of DDL for source type as '%s'", source.DBType)
	if source.VerboseMode {
		redacted := source.Clone()
		redacted.Password = "XXX"
		log.Infof("resolved source configuration: %s", spew.Sdump(redacted))
	}

	exporter := &export.Exporter{
		DB:         source.DB(),
		ExportDir:  exportDir,
		SchemaList: source.SchemaList(),
		DisablePb:  bool(disablePb),
		Source: export.SourceInfo{
			Host:        source.Host,
			Port:        source.Port,
			ServiceName: source.DBName,
			DBSid:       source.DBSid,
			TNSAlias:    source.TNSAlias,
			User:        source.User,
		},
	}

	err := exporter.Run(ctx)
	if err != nil {
		if errors.Is(err, export.ErrCancelled) {
			if exporter.RunRoot != "" {
				utils.PrintAndLog("DDL export cancelled. Partially exported files are under directory: %s", exporter.RunRoot)
			} else {
				utils.PrintAndLog("DDL export cancelled.")
			}
			atexit.Exit(130)
		}
		utils.ErrExit("export DDL: %s", err)
	}
	if exporter.RunRoot == "" {
		// nothing matched the schema list
		return
	}

	displayExportSummary(exporter)
	if exporter.FailedObjects > 0 || exporter.FailedArtifacts > 0 {
		color.Red("\nExport of DDL completed with %d failed object(s) and %d skipped artifact(s). "+
			"Check the error markers in the exported files and the log for details.\n",
			exporter.FailedObjects, exporter.FailedArtifacts)
	} else {
		color.Green("\nExport of DDL complete ✅\n")
	}
	utils.PrintAndLog("Exported schema files created under directory: %s", exporter.RunRoot)

	archiveExportRun(ctx, exporter.RunRoot)
}

func displayExportSummary(exporter *export.Exporter) {
	if len(exporter.Reports) == 0 {
		return
	}
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	uiTable := uitable.New()
	uiTable.AddRow(headerfmt("SCHEMA"), headerfmt("EXPORTED OBJECTS"), headerfmt("FAILED OBJECTS"), headerfmt("ARTIFACTS"))
	for _, report := range exporter.Reports {
		uiTable.AddRow(report.SchemaName, report.ExportedObjects, report.FailedObjects, report.Artifacts)
	}
	fmt.Print("\n")
	fmt.Println(uiTable)
	fmt.Print("\n")
}

// archiveExportRun packs the run directory and optionally uploads it. A
// failure here never fails the export, the files stay on disk either way.
func archiveExportRun(ctx context.Context, runRoot string) {
	if !archiveExport {
		return
	}

	utils.PrintAndLog("Archiving the exported run directory...")
	archivePath, size, err := archive.CreateTarball(runRoot)
	if err != nil {
		log.Errorf("create archive of %q: %s", runRoot, err)
		color.Red("\nFailed to create the archive: %s\n", err)
		return
	}
	utils.PrintAndLog("Created archive %s (%s)", archivePath, humanize.Bytes(uint64(size)))

	if archiveUploadURI == "" {
		return
	}
	uploadedURI, err := archive.UploadToS3(ctx, archiveUploadURI, archivePath)
	if err != nil {
		log.Errorf("upload archive %q: %s", archivePath, err)
		color.Red("\nFailed to upload the archive to %q: %s\nThe archive remains at %s\n",
			archiveUploadURI, err, archivePath)
		return
	}
	utils.PrintAndLog("Uploaded the archive to %s", uploadedURI)
}
