package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yourusername/camgate/internal/client"
)

// channelsCmd는 실행 중인 게이트웨이의 채널을 API로 제어합니다
var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage the channels of a running gateway",
	Long: `List, start, stop and poll channels of a gateway started with "camgate serve".

Example:
  camgate channels list
  camgate channels start 8089:LPR 8090:CNR
  camgate channels poll 8089
  camgate channels stop 8089 --server http://10.0.0.2:8080`,
}

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		infos, err := apiClient(cmd).ListChannels(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, info := range infos {
			fmt.Fprintf(out, "%-6d %-4s %-10s conns=%d frames=%d events=%d pending=%t\n",
				info.Port, info.Type, info.State, info.Connections, info.FramesReceived, info.EventsStored, info.Pending)
		}
		return nil
	},
}

var channelsStartCmd = &cobra.Command{
	Use:   "start PORT[:TYPE]...",
	Short: "Start one or more channels",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs := make([]client.ChannelSpec, 0, len(args))
		for _, arg := range args {
			spec, err := parseChannelArg(arg)
			if err != nil {
				return err
			}
			specs = append(specs, spec)
		}

		results, err := apiClient(cmd).StartChannels(cmd.Context(), specs)
		if err != nil {
			return err
		}

		failed := 0
		out := cmd.OutOrStdout()
		for _, r := range results {
			if r.Error != "" {
				failed++
				fmt.Fprintf(out, "[%s %d] %s: %s\n", r.Type, r.Port, r.Status, r.Error)
				continue
			}
			fmt.Fprintf(out, "[%s %d] %s\n", r.Type, r.Port, r.Status)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d channels failed to start", failed, len(results))
		}
		return nil
	},
}

var channelsStopCmd = &cobra.Command{
	Use:   "stop PORT",
	Short: "Stop a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		if err := apiClient(cmd).StopChannel(cmd.Context(), port); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "channel %d stopped\n", port)
		return nil
	},
}

var channelsPollCmd = &cobra.Command{
	Use:   "poll PORT",
	Short: "Read and clear the latest result of a channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[0])
		}
		text, ok, err := apiClient(cmd).Latest(cmd.Context(), port)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "no new data")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	channelsCmd.AddCommand(channelsListCmd, channelsStartCmd, channelsStopCmd, channelsPollCmd)

	channelsCmd.PersistentFlags().String("server", "http://localhost:8080", "gateway API base URL")
}

func apiClient(cmd *cobra.Command) *client.APIClient {
	server, _ := cmd.Flags().GetString("server")
	return client.NewAPIClient(server)
}

// parseChannelArg는 "8088" 또는 "8088:CNR" 형식을 해석합니다
func parseChannelArg(arg string) (client.ChannelSpec, error) {
	portStr, typ, _ := strings.Cut(arg, ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return client.ChannelSpec{}, fmt.Errorf("invalid channel %q: want PORT or PORT:TYPE", arg)
	}
	return client.ChannelSpec{Port: port, Type: strings.ToUpper(typ)}, nil
}
