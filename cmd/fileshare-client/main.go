// Command fileshare-client is the interactive shell for the file
// exchange protocol: it prompts for commands, file paths, and
// confirmations, and renders server replies and transfer progress.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/fileshare/client"
	"github.com/opd-ai/fileshare/store"
	"github.com/opd-ai/fileshare/transfer"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	downloads := flag.String("downloads", "downloads", "download directory")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		// Keep the interactive prompt clean.
		logrus.SetLevel(logrus.WarnLevel)
	}

	fmt.Printf("connecting to %s...\n", *addr)
	c, err := client.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		fmt.Fprintln(os.Stderr, "make sure the server is running on", *addr)
		os.Exit(1)
	}
	defer c.Close()

	sh := &shell{
		client:    c,
		in:        bufio.NewScanner(os.Stdin),
		downloads: *downloads,
	}

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("         FILE SHARING CLIENT")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("connected to:    %s\n", *addr)
	fmt.Printf("download folder: %s\n", *downloads)
	fmt.Println(strings.Repeat("=", 50))
	sh.printMenu()

	sh.run()
}

// shell is the interactive menu loop around one client connection.
type shell struct {
	client    *client.Client
	in        *bufio.Scanner
	downloads string
}

func (sh *shell) run() {
	for sh.client.Connected() {
		choice := sh.prompt("\n> enter your choice (1-6): ")

		switch choice {
		case "":
			continue
		case "1":
			sh.list()
		case "2":
			sh.upload()
		case "3":
			sh.download()
		case "4":
			sh.delete()
		case "5":
			sh.printMenu()
		case "6":
			sh.quit()
			return
		default:
			fmt.Println("invalid choice, enter a number between 1 and 6 (5 shows the menu)")
		}
	}

	fmt.Println("connection to server lost, please restart the client")
}

func (sh *shell) printMenu() {
	fmt.Println("\navailable commands:")
	fmt.Println("1. list files on server")
	fmt.Println("2. upload file to server")
	fmt.Println("3. download file from server")
	fmt.Println("4. delete file from server")
	fmt.Println("5. show this menu")
	fmt.Println("6. quit")
}

// prompt reads one trimmed input line; EOF on stdin quits the shell.
func (sh *shell) prompt(msg string) string {
	fmt.Print(msg)
	if !sh.in.Scan() {
		sh.quit()
		os.Exit(0)
	}
	return strings.TrimSpace(sh.in.Text())
}

// confirm asks a yes/no question, defaulting to no.
func (sh *shell) confirm(msg string) bool {
	answer := strings.ToLower(sh.prompt(msg))
	return answer == "y" || answer == "yes"
}

func (sh *shell) list() {
	listing, err := sh.client.List()
	if err != nil {
		fmt.Printf("error listing files: %v\n", err)
		return
	}
	fmt.Println("\n" + listing)
}

func (sh *shell) upload() {
	path := sh.prompt("\nenter the full path of the file to upload: ")
	if path == "" {
		fmt.Println("file path cannot be empty")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("file not found: %s\n", path)
		return
	}
	if !info.Mode().IsRegular() {
		fmt.Printf("path is not a file: %s\n", path)
		return
	}
	if info.Size() == 0 {
		fmt.Println("cannot upload empty file")
		return
	}

	fmt.Printf("file: %s\nsize: %s\n", filepath.Base(path), store.FormatSize(uint64(info.Size())))
	if !sh.confirm("proceed with upload? (y/N): ") {
		fmt.Println("upload cancelled")
		return
	}

	fmt.Printf("\nuploading %s...\n", filepath.Base(path))
	reply, err := sh.client.Upload(path, renderProgress)
	fmt.Println()
	if err != nil {
		fmt.Printf("error uploading file: %v\n", err)
		return
	}
	fmt.Println("server response:", reply)
}

func (sh *shell) download() {
	name := sh.prompt("\nenter the name of the file to download: ")
	if name == "" {
		fmt.Println("filename cannot be empty")
		return
	}

	local := filepath.Join(sh.downloads, name)
	if _, err := os.Stat(local); err == nil {
		if !sh.confirm("file already exists locally, overwrite? (y/N): ") {
			fmt.Println("download cancelled")
			return
		}
	}

	fmt.Printf("\ndownloading %s...\n", name)
	path, err := sh.client.Download(name, sh.downloads, renderProgress)
	fmt.Println()
	if err != nil {
		fmt.Printf("download failed: %v\n", err)
		return
	}
	fmt.Println("file downloaded successfully")
	fmt.Println("saved to:", path)
}

func (sh *shell) delete() {
	name := sh.prompt("\nenter the name of the file to delete: ")
	if name == "" {
		fmt.Println("filename cannot be empty")
		return
	}

	if !sh.confirm(fmt.Sprintf("are you sure you want to delete %q from the server? (y/N): ", name)) {
		fmt.Println("delete cancelled")
		return
	}

	reply, err := sh.client.Delete(name)
	if err != nil {
		fmt.Printf("error deleting file: %v\n", err)
		return
	}
	fmt.Println("server response:", reply)
}

func (sh *shell) quit() {
	farewell, err := sh.client.Quit()
	if err == nil {
		fmt.Println("server:", farewell)
	}
	fmt.Println("goodbye!")
}

// renderProgress redraws one progress line in place after each chunk.
func renderProgress(p transfer.Progress) {
	fmt.Printf("\rprogress: %3.0f%% (%s/%s @ %.1f KB/s)",
		p.Percent(),
		store.FormatSize(p.Transferred),
		store.FormatSize(p.Total),
		p.Speed/1024)
}
