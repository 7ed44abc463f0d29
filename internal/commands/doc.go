// Package commands routes submitted lines. A handful of words are handled
// locally (file listing, printing, print history, Z offset nudges and help);
// anything else is forwarded to the printer as G-code.
//
// Local commands that need the printer run as gateway tasks, so they get a
// command record, a timeout and the same outcome reporting as G-code. Their
// output is published to the event queue from the task itself.
package commands
