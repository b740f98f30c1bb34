// Command houghfind runs the hough track search over event files.
package main

func main() {
	Execute()
}
